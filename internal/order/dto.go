package order

// Response is the order detail body: header plus line items.
type Response struct {
	Order Order  `json:"order"`
	Items []Item `json:"items"`
}

// StatusUpdateRequest is the admin-facing status mutation payload.
type StatusUpdateRequest struct {
	Status Status `json:"status" example:"shipped"`
}
