package domain

// Tag is a name/value metadata pair attached to a submitted or effect
// message. Tags carry both protocol parameters and correlation keys, so tag
// sets are kept ordered.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Tags is an ordered tag list.
type Tags []Tag

// Get returns the value of the first tag named name, or "" when absent.
func (t Tags) Get(name string) string {
	for _, tag := range t {
		if tag.Name == name {
			return tag.Value
		}
	}
	return ""
}

// Has reports whether a tag named name is present.
func (t Tags) Has(name string) bool {
	for _, tag := range t {
		if tag.Name == name {
			return true
		}
	}
	return false
}

// AoMessage is a confirmation message parsed from a ledger transaction
// record: built per poll iteration and discarded once the caller's validator
// has consumed it.
type AoMessage struct {
	ID   string
	From string
	To   string
	Tags map[string]string
}

// Tag returns the value of the named tag, or "" when absent.
func (m *AoMessage) Tag(name string) string {
	return m.Tags[name]
}

// HasTag reports whether the named tag is present.
func (m *AoMessage) HasTag(name string) bool {
	_, ok := m.Tags[name]
	return ok
}
