// CLAUDE:SUMMARY Per-page request hijack dropping resource types named in Config.BlockResources.
package driver

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceAliases maps Chrome's singular resource-type names onto the plural
// vocabulary Config.BlockResources uses. Types without an alias match the
// config entry verbatim.
var resourceAliases = map[string]string{
	"image":      "images",
	"font":       "fonts",
	"media":      "media",
	"stylesheet": "stylesheets",
}

// blockResources hijacks every request on the page and fails those whose
// resource type is on the driver's block list. Extraction only reads text
// and attributes, so dropping images, fonts, and media cuts page weight
// without changing what the selectors see.
func (d *Driver) blockResources(page *rod.Page) {
	blocked := make(map[string]bool, len(d.cfg.BlockResources))
	for _, name := range d.cfg.BlockResources {
		blocked[strings.ToLower(name)] = true
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if blocked[configName(string(h.Request.Type()))] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}

func configName(resourceType string) string {
	lower := strings.ToLower(resourceType)
	if alias, ok := resourceAliases[lower]; ok {
		return alias
	}
	return lower
}
