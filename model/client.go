package model

// Client model
type Client struct {
	ID   int     `json:"id"`
	Name string  `json:"name"`
	Keys KeyPair `json:"keys"`
}

// NewClient creates a client with a freshly generated key pair
func NewClient(id int, name string) *Client {
	return &Client{
		ID:   id,
		Name: name,
		Keys: GenerateKeyPair(),
	}
}
