package fetch

import (
	"net/url"
	"strings"

	"github.com/yshsolar/catalog-pipeline/internal/config"
)

// Platform represents a store front engine used by distributor portals.
type Platform string

const (
	// PlatformVTEX is the VTEX commerce platform
	PlatformVTEX Platform = "vtex"
	// PlatformShopify is the Shopify platform
	PlatformShopify Platform = "shopify"
	// PlatformWooCommerce is the WordPress WooCommerce plugin
	PlatformWooCommerce Platform = "woocommerce"
	// PlatformNuvemshop is the Nuvemshop (Tiendanube) platform
	PlatformNuvemshop Platform = "nuvemshop"
	// PlatformUnknown is an unrecognized platform
	PlatformUnknown Platform = "unknown"
)

// DetectPlatform identifies the store front engine from the URL, then from HTML markers.
func DetectPlatform(urlStr, html string) Platform {
	if parsed, err := url.Parse(urlStr); err == nil {
		host := strings.ToLower(parsed.Host)
		switch {
		case strings.Contains(host, "vtexcommercestable.com.br") || strings.Contains(host, "myvtex.com"):
			return PlatformVTEX
		case strings.Contains(host, "myshopify.com"):
			return PlatformShopify
		case strings.Contains(host, "lojavirtualnuvem.com.br") || strings.Contains(host, "mitiendanube.com"):
			return PlatformNuvemshop
		}
	}

	lower := strings.ToLower(html)
	switch {
	case strings.Contains(lower, "vtex.render") || strings.Contains(lower, "vteximg.com.br") || strings.Contains(lower, "vtexassets.com"):
		return PlatformVTEX
	case strings.Contains(lower, "cdn.shopify.com"):
		return PlatformShopify
	case strings.Contains(lower, "woocommerce"):
		return PlatformWooCommerce
	case strings.Contains(lower, "nuvemshop") || strings.Contains(lower, "tiendanube"):
		return PlatformNuvemshop
	}
	return PlatformUnknown
}

// PlatformSelectors returns html_selectors that match the product cards of a platform's
// default theme. Unknown platforms get nil and the page is ingested as one excerpt.
func PlatformSelectors(platform Platform) *config.HTMLSelectors {
	switch platform {
	case PlatformVTEX:
		return &config.HTMLSelectors{
			Item: ".vtex-product-summary-2-x-container, .prateleira li",
			Fields: map[string]string{
				"name":  ".vtex-product-summary-2-x-productBrand, .product-name",
				"price": ".vtex-product-price-1-x-sellingPrice, .best-price",
				"url":   "a@href",
			},
			Image: "img",
		}
	case PlatformShopify:
		return &config.HTMLSelectors{
			Item: ".product-card, .grid-product, .card-wrapper",
			Fields: map[string]string{
				"name":  ".card__heading, .grid-product__title, .product-card__title",
				"price": ".price-item--regular, .grid-product__price, .price",
				"url":   "a@href",
			},
			Image: "img",
		}
	case PlatformWooCommerce:
		return &config.HTMLSelectors{
			Item: "li.product",
			Fields: map[string]string{
				"name":  ".woocommerce-loop-product__title",
				"price": ".price",
				"sku":   "[data-product_sku]@data-product_sku",
				"url":   "a.woocommerce-LoopProduct-link@href",
			},
			Image: "img",
		}
	case PlatformNuvemshop:
		return &config.HTMLSelectors{
			Item: ".js-item-product",
			Fields: map[string]string{
				"name":  ".js-item-name",
				"price": ".js-price-display",
				"url":   "a@href",
			},
			Image: "img",
		}
	default:
		return nil
	}
}

// PlatformNoiseSelectors returns elements to drop before extracting text from a listing.
func PlatformNoiseSelectors(platform Platform) []string {
	common := []string{
		"form",
		".newsletter",
		".cookie-banner",
		".cookie-consent",
		".lgpd-notice",
		".social-share",
		".whatsapp-button",
		".minicart",
	}

	switch platform {
	case PlatformVTEX:
		return append(common,
			".vtex-store-footer-2-x-footerLayout",
			".vtex-minicart-2-x-minicartWrapperContainer",
		)
	case PlatformShopify:
		return append(common,
			".announcement-bar",
			"cart-drawer",
		)
	case PlatformWooCommerce:
		return append(common,
			".woocommerce-breadcrumb",
			".widget_shopping_cart",
		)
	default:
		return common
	}
}
