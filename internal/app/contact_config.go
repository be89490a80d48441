package app

import (
	"github.com/charlesng35/tradepost/internal/services"
)

// ContactPermissionOptions converts ContactConfig into workflow options. Zero values fall back to
// the service defaults.
func (c ContactConfig) ContactPermissionOptions() services.ContactPermissionOptions {
	return services.ContactPermissionOptions{
		RequestLimit:    c.RequestLimit,
		RequestWindow:   c.RequestWindow,
		DefaultGrantTTL: c.DefaultGrantTTL,
	}
}

// ProfileResolverOptions converts ContactConfig into secure profile read options.
func (c ContactConfig) ProfileResolverOptions() services.ProfileResolverOptions {
	return services.ProfileResolverOptions{
		AccessLimit:  c.ProfileAccessLimit,
		AccessWindow: c.ProfileAccessWindow,
	}
}

// SecurityLogOptions converts SecurityLogConfig into writer options.
func (c SecurityLogConfig) SecurityLogOptions() services.SecurityLogOptions {
	return services.SecurityLogOptions{
		BufferSize:   c.BufferSize,
		WriteTimeout: c.WriteTimeout,
	}
}
