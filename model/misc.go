package model

// Interface model
type Interface struct {
	Name      string `json:"name"`
	IPAddress string `json:"ip_address"`
}
