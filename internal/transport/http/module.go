package http

import (
	"go.uber.org/fx"

	catalogtransport "github.com/Additional-Code/orderdesk/internal/transport/http/catalog"
	"github.com/Additional-Code/orderdesk/internal/transport/http/identity"
	ordertransport "github.com/Additional-Code/orderdesk/internal/transport/http/order"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	identity.Module,
	ordertransport.Module,
	catalogtransport.Module,
)
