package clients

import (
	"sync"

	"github.com/jrsteele09/go-token-broker/internal/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

type InMemoryRepo struct {
	clients map[string]*Client
	lock    sync.RWMutex
}

func NewInMemoryRepo(seed ...*Client) *InMemoryRepo {
	r := &InMemoryRepo{
		clients: make(map[string]*Client),
	}
	for _, c := range seed {
		r.clients[c.ID] = c.clone()
	}
	return r
}

func (r *InMemoryRepo) Upsert(clientData *Client) error {
	if clientData.ID == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "client id is required")
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	r.clients[clientData.ID] = clientData.clone()
	return nil
}

func (r *InMemoryRepo) Get(clientID string) (*Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	client, ok := r.clients[clientID]
	if !ok {
		return nil, errors.ErrInvalidClient
	}
	return client.clone(), nil
}
