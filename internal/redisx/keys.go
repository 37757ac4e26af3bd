package redisx

import "time"

const (
	// idem:order:create:{user_id:idempotency_key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// gateway:token:{consumer_key} -> bearer token
	KeyGatewayToken = "gateway:token:%s"

	// gateway:ipn:{ipn_url} -> ipn_id
	KeyGatewayIPN = "gateway:ipn:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
	// TTLGatewayToken applies when the gateway omits the token expiry.
	TTLGatewayToken = 4 * time.Minute
)
