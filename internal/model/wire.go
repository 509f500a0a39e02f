package model

// Credentials is the POST /auth/login body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the POST /auth/register body.
type Registration struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is returned by POST /auth/login.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// RegisterResult is returned by POST /auth/register. No token is issued.
type RegisterResult struct {
	User User `json:"user"`
}

// RemoteCartItem is a cart line as stored by the remote Cart service.
type RemoteCartItem struct {
	ID        ID       `json:"id"`
	ProductID ID       `json:"product_id"`
	Quantity  int      `json:"quantity"`
	Product   *Product `json:"product,omitempty"`
}

// RemoteCart is the server-side cart of the authenticated user.
type RemoteCart struct {
	ID    ID               `json:"id"`
	Items []RemoteCartItem `json:"items"`
}

// ItemFor returns the remote line for productID, if any.
func (c RemoteCart) ItemFor(productID string) (RemoteCartItem, bool) {
	for _, it := range c.Items {
		if string(it.ProductID) == productID {
			return it, true
		}
	}
	return RemoteCartItem{}, false
}

// AddItemRequest is the POST /cart/items body.
type AddItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// UpdateItemRequest is the PUT /cart/items/{itemId} body.
type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}

// Ack is a generic acknowledgement body.
type Ack struct {
	Message string `json:"message,omitempty"`
}
