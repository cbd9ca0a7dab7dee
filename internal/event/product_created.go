package event

// TopicProductCreated is published through the outbox when a product is created.
const TopicProductCreated = "product.created"

type ProductCreatedEvent struct {
	ProductID      string `json:"productId"`
	ProductCode    string `json:"productCode"`
	Name           string `json:"productName"`
	ItemPrice      string `json:"itemPrice"`
	AvailableStock int    `json:"availableStock"`
	SellerID       string `json:"sellerId"`
}
