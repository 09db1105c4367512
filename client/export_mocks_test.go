package client

// MockClientKeys replaces the generation of client keys. Returns a function to undo
// the mocking.
func MockClientKeys(keys ...string) func() {
	var i int
	old := newClientKey
	newClientKey = func() string {
		key := keys[i]
		i++
		return key
	}
	return func() { newClientKey = old }
}
