// Package tenant attributes requests to an (organization, app) pair.
package tenant

import (
	"crypto/md5"
	"math/big"
	"net/http"

	"go.uber.org/zap"
)

// Unknown is used for any identity field that cannot be resolved.
const Unknown = "unknown"

const (
	HeaderAuthorization = "Authorization"
	HeaderCustomerID    = "X-Customer-ID"
	HeaderAppID         = "X-App-ID"
)

// DefaultOrganizations is the ordered pool credentials are hashed into when
// no explicit identity is available. Changing the order remaps every key.
var DefaultOrganizations = []string{"irctc", "kisanmitra", "bashadaan", "beml"}

// Context identifies who issued a request. Both fields are always set.
type Context struct {
	Organization string `json:"organization"`
	App          string `json:"app"`
}

// Resolver derives a Context from request headers.
type Resolver struct {
	organizations []string
	logger        *zap.Logger
}

// NewResolver creates a Resolver. An empty pool selects DefaultOrganizations.
func NewResolver(organizations []string, logger *zap.Logger) *Resolver {
	if len(organizations) == 0 {
		organizations = DefaultOrganizations
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool := make([]string, len(organizations))
	copy(pool, organizations)
	return &Resolver{
		organizations: pool,
		logger:        logger,
	}
}

// Resolve never fails. Organization precedence: bearer token name/sub claim,
// X-Customer-ID, hash of the Authorization credential, Unknown.
// App comes only from X-App-ID.
func (r *Resolver) Resolve(h http.Header) Context {
	tc := Context{Organization: Unknown, App: Unknown}
	if app := h.Get(HeaderAppID); app != "" {
		tc.App = app
	}

	auth := h.Get(HeaderAuthorization)

	if token, ok := bearerToken(auth); ok {
		org, err := organizationFromToken(token)
		if err == nil {
			tc.Organization = org
			return tc
		}
		r.logger.Debug("token claims unavailable for attribution", zap.Error(err))
	}

	if customer := h.Get(HeaderCustomerID); customer != "" {
		tc.Organization = customer
		return tc
	}

	if auth != "" {
		key := auth
		if token, ok := bearerToken(auth); ok {
			key = token
		}
		tc.Organization = r.organizationForKey(key)
		r.logger.Debug("mapped credential to organization",
			zap.String("organization", tc.Organization))
	}

	return tc
}

// organizationForKey picks a pool entry from the md5 of key read as a
// big-endian unsigned integer.
func (r *Resolver) organizationForKey(key string) string {
	sum := md5.Sum([]byte(key))
	n := new(big.Int).SetBytes(sum[:])
	idx := new(big.Int).Mod(n, big.NewInt(int64(len(r.organizations))))
	return r.organizations[idx.Int64()]
}

// Organizations returns a copy of the hashing pool.
func (r *Resolver) Organizations() []string {
	out := make([]string, len(r.organizations))
	copy(out, r.organizations)
	return out
}
