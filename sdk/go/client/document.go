package client

import (
	"context"

	"github.com/zeusync/sheetsync/internal/core/document"
)

// OpenDocument fetches the document, opens it locally and connects so the
// relay sends what was committed since the fetched state. The document must
// only be used from functions passed to Client.Do.
func OpenDocument(ctx context.Context, config Config, options document.Config) (*Client, *document.Document, error) {
	c, err := NewClient(config)
	if err != nil {
		return nil, nil, err
	}
	snapshot, err := c.Fetch(ctx)
	if err != nil {
		return nil, nil, err
	}

	options.ClientID = c.ID()
	options.ClientName = c.config.ClientName
	options.Transport = c
	options.Data = snapshot.Data
	options.RevisionID = snapshot.RevisionID
	options.Messages = snapshot.Messages
	if options.Logger == nil {
		options.Logger = c.logger
	}
	doc, err := document.Open(options)
	if err != nil {
		return nil, nil, err
	}

	if err = c.Connect(ctx, doc.Session().RevisionID()); err != nil {
		return nil, nil, err
	}
	return c, doc, nil
}
