package realtime

import "log"

// Hub fans generation progress out to websocket watchers. Clients
// subscribe to individual generations or to the deployment status feed;
// traffic nobody subscribed to is dropped here, not delivered.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// generationID -> set of subscribed clients
	watchers map[uint]map[*Client]bool

	// Clients following the deployment status feed
	statusWatchers map[*Client]bool

	register   chan *Client
	unregister chan *Client
	subscribe  chan subscribeMsg
	broadcast  chan broadcastMsg
}

type subscribeMsg struct {
	client       *Client
	generationID uint
	status       bool
}

type broadcastMsg struct {
	generationID uint
	status       bool
	payload      []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		watchers:       make(map[uint]map[*Client]bool),
		statusWatchers: make(map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		subscribe:      make(chan subscribeMsg),
		broadcast:      make(chan broadcastMsg, 256),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Printf("client registered (total: %d)", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				log.Printf("client unregistered (total: %d)", len(h.clients))
			}

		case msg := <-h.subscribe:
			if msg.status {
				h.statusWatchers[msg.client] = true
				log.Printf("client subscribed to deployment status (subscribers: %d)", len(h.statusWatchers))
				continue
			}
			if _, ok := h.watchers[msg.generationID]; !ok {
				h.watchers[msg.generationID] = make(map[*Client]bool)
			}
			h.watchers[msg.generationID][msg.client] = true
			log.Printf("client subscribed to generation %d (subscribers: %d)", msg.generationID, len(h.watchers[msg.generationID]))

		case msg := <-h.broadcast:
			if msg.status {
				h.send(h.statusWatchers, msg.payload)
				continue
			}
			if subs, ok := h.watchers[msg.generationID]; ok {
				h.send(subs, msg.payload)
			}
		}
	}
}

func (h *Hub) send(subs map[*Client]bool, payload []byte) {
	for client := range subs {
		select {
		case client.send <- payload:
		default:
			// Client buffer full, remove it
			h.drop(client)
		}
	}
}

// drop removes a client from the hub and every subscription set.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	delete(h.statusWatchers, client)
	for generationID, subs := range h.watchers {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.watchers, generationID)
		}
	}
	close(client.send)
}
