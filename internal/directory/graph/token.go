package graph

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultTokenURLFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	defaultScope          = "https://graph.microsoft.com/.default"
)

// newTokenSource builds a client-credentials token source for the
// directory tenant. Tokens are cached and refreshed by the source; every
// request asks the source rather than holding a token of its own.
func newTokenSource(tenantID, clientID, clientSecret, tokenURL, scope string, base *http.Client) oauth2.TokenSource {
	if tokenURL == "" {
		tokenURL = fmt.Sprintf(defaultTokenURLFormat, tenantID)
	}
	if scope == "" {
		scope = defaultScope
	}

	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	ctx := context.Background()
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	return cc.TokenSource(ctx)
}
