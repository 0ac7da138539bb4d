package ws

import "sync"

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub manages live telemetry stream subscriptions by product ID.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
}

// message couples payload with product identifier.
type message struct {
	productID string
	payload   []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	productID string
	client    Subscriber
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.clients[sub.productID]; !ok {
				h.clients[sub.productID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.productID][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.productID]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.productID)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.productID]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.productID)
				}
			}
		}
	}
}

// Register adds a client to a product stream.
func (h *Hub) Register(productID string, client Subscriber) {
	h.register <- subscription{productID: productID, client: client}
}

// Unregister removes a client.
func (h *Hub) Unregister(productID string, client Subscriber) {
	h.unreg <- subscription{productID: productID, client: client}
}

// Broadcast sends payload to all product clients.
func (h *Hub) Broadcast(productID string, payload []byte) {
	h.broadcast <- message{productID: productID, payload: payload}
}
