package relay

// Topic groups the subscriptions for one destination.
type Topic struct {
	Name string
	subs map[*Client]map[string]struct{}
}

// NewTopic constructs a topic with no subscribers.
func NewTopic(name string) *Topic {
	return &Topic{
		Name: name,
		subs: make(map[*Client]map[string]struct{}),
	}
}

// Add registers a subscription id for c. Returns true if newly added.
func (t *Topic) Add(c *Client, id string) bool {
	ids, ok := t.subs[c]
	if !ok {
		ids = make(map[string]struct{})
		t.subs[c] = ids
	}
	if _, exists := ids[id]; exists {
		return false
	}
	ids[id] = struct{}{}
	return true
}

// Remove deletes one subscription. Returns true if removed.
func (t *Topic) Remove(c *Client, id string) bool {
	ids, ok := t.subs[c]
	if !ok {
		return false
	}
	if _, exists := ids[id]; !exists {
		return false
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(t.subs, c)
	}
	return true
}

// RemoveClient drops every subscription held by c and returns how many there were.
func (t *Topic) RemoveClient(c *Client) int {
	n := len(t.subs[c])
	delete(t.subs, c)
	return n
}

// Each calls fn for every subscription.
func (t *Topic) Each(fn func(c *Client, id string)) {
	for c, ids := range t.subs {
		for id := range ids {
			fn(c, id)
		}
	}
}

// Empty returns true if the topic has no subscriptions.
func (t *Topic) Empty() bool {
	return len(t.subs) == 0
}
