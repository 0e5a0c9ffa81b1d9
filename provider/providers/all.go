// Package providers imports all provider adapter packages to trigger
// their init() registration.
package providers

import (
	_ "trafego/trafegodns/provider/cloudflare"
	_ "trafego/trafegodns/provider/rfc2136"
	_ "trafego/trafegodns/provider/route53"
)
