package session

// MemoryBag is an in-process Bag used by tests and one-off tooling.
type MemoryBag struct {
	Values  map[string][]byte
	Pending []Flash
	Saves   int
	SaveErr error
}

func NewMemoryBag() *MemoryBag {
	return &MemoryBag{Values: map[string][]byte{}}
}

func (m *MemoryBag) Get(key string) ([]byte, bool) {
	v, ok := m.Values[key]
	return v, ok
}

func (m *MemoryBag) Set(key string, val []byte) {
	m.Values[key] = append([]byte(nil), val...)
}

func (m *MemoryBag) Delete(key string) { delete(m.Values, key) }

func (m *MemoryBag) AddFlash(kind, message string) {
	m.Pending = append(m.Pending, Flash{Kind: kind, Message: message})
}

func (m *MemoryBag) Flashes() []Flash {
	out := m.Pending
	m.Pending = nil
	return out
}

func (m *MemoryBag) Save() error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Saves++
	return nil
}
