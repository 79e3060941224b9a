package application

import "sync"

type ChangeKind string

const (
	IngredientsChanged  ChangeKind = "ingredients_changed"
	DeliveryTimeChanged ChangeKind = "delivery_time_changed"
)

// Change tells observers that data they display was modified by a command.
type Change struct {
	Kind         ChangeKind
	DeliveryTime string
}

type ChangeObserver interface {
	OnChange(Change)
}

type ChangeObserverFunc func(Change)

func (f ChangeObserverFunc) OnChange(c Change) { f(c) }

// changeNotifier fans a Change out to every subscriber. Delivery is
// synchronous, so observers must not block.
type changeNotifier struct {
	mu        sync.Mutex
	nextID    int
	observers map[int]ChangeObserver
}

func (n *changeNotifier) Subscribe(o ChangeObserver) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.observers == nil {
		n.observers = make(map[int]ChangeObserver)
	}
	id := n.nextID
	n.nextID++
	n.observers[id] = o

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.observers, id)
			n.mu.Unlock()
		})
	}
}

func (n *changeNotifier) notify(c Change) {
	n.mu.Lock()
	observers := make([]ChangeObserver, 0, len(n.observers))
	for _, o := range n.observers {
		observers = append(observers, o)
	}
	n.mu.Unlock()

	for _, o := range observers {
		o.OnChange(c)
	}
}
