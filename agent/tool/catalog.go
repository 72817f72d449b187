package tool

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/mitchellh/mapstructure"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

const (
	ToolListOffers         = "list_offers"
	ToolListProducts       = "list_products"
	ToolRequestAppointment = "request_appointment"
	ToolMathEvaluate       = "evaluate_math"

	defaultProductLimit = 10
	maxProductLimit     = 50
)

// RegisterBuiltins registers the catalog tools. The appointment tool is
// only registered when a workflow submitter is available.
func RegisterBuiltins(r *Registry, submitter contractx.WorkflowSubmitter) error {
	decls := []Declaration{
		listOffersDeclaration(),
		listProductsDeclaration(),
		mathDeclaration(),
	}
	if submitter != nil {
		decls = append(decls, appointmentDeclaration(submitter))
	}
	for _, d := range decls {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// decodeInput copies a validated input map into a typed struct using its
// json tags.
func decodeInput(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrToolExecution, err)
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrInvalidToolInput, err)
	}
	return nil
}

type OfferOutput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Discount    string `json:"discount,omitempty"`
	ValidUntil  string `json:"valid_until,omitempty"`
}

type ListOffersOutput struct {
	Offers []OfferOutput `json:"offers"`
	Count  int           `json:"count"`
}

func listOffersDeclaration() Declaration {
	return Declaration{
		Name:        ToolListOffers,
		Description: "List the business's currently active offers and discounts.",
		Input:       openapi3.NewObjectSchema().WithoutAdditionalProperties(),
		Handler: func(_ context.Context, _ map[string]any, bundle *contractx.ContextBundle) (any, error) {
			if bundle == nil {
				return nil, fmt.Errorf("%w: no business context", contractx.ErrToolExecution)
			}
			out := ListOffersOutput{Offers: make([]OfferOutput, 0, len(bundle.ActiveOffers))}
			for _, o := range bundle.ActiveOffers {
				item := OfferOutput{
					Title:       o.Title,
					Description: o.Description,
					Discount:    o.DiscountLabel(),
				}
				if o.EndsAt != nil {
					item.ValidUntil = o.EndsAt.UTC().Format("2006-01-02")
				}
				out.Offers = append(out.Offers, item)
			}
			out.Count = len(out.Offers)
			return out, nil
		},
	}
}

type listProductsInput struct {
	Category string   `json:"category"`
	MaxPrice *float64 `json:"max_price"`
	Limit    int      `json:"limit"`
}

type ProductOutput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Price       string `json:"price"`
	Available   bool   `json:"available"`
}

type ListProductsOutput struct {
	Products []ProductOutput `json:"products"`
	Count    int             `json:"count"`
	// Truncated is set when more products matched than limit allowed.
	Truncated bool `json:"truncated,omitempty"`
}

func listProductsDeclaration() Declaration {
	input := openapi3.NewObjectSchema().
		WithProperty("category", openapi3.NewStringSchema().WithMaxLength(100)).
		WithProperty("max_price", openapi3.NewFloat64Schema().WithMin(0)).
		WithProperty("limit", openapi3.NewIntegerSchema().WithMin(1).WithMax(maxProductLimit)).
		WithoutAdditionalProperties()
	input.Properties["category"].Value.Description = "Case-insensitive product category filter."
	input.Properties["max_price"].Value.Description = "Maximum price in the product currency, e.g. 20 or 12.5."
	input.Properties["limit"].Value.Description = "Maximum number of products to return."

	return Declaration{
		Name:        ToolListProducts,
		Description: "List the business's products and services, optionally filtered by category and maximum price.",
		Input:       input,
		Handler: func(_ context.Context, raw map[string]any, bundle *contractx.ContextBundle) (any, error) {
			if bundle == nil {
				return nil, fmt.Errorf("%w: no business context", contractx.ErrToolExecution)
			}
			var in listProductsInput
			if err := decodeInput(raw, &in); err != nil {
				return nil, err
			}
			return filterProducts(bundle.Products, in), nil
		},
	}
}

func filterProducts(products []contractx.Product, in listProductsInput) ListProductsOutput {
	limit := in.Limit
	if limit <= 0 {
		limit = defaultProductLimit
	}
	category := strings.ToLower(strings.TrimSpace(in.Category))

	var maxCents int64 = -1
	if in.MaxPrice != nil {
		maxCents = int64(math.Round(*in.MaxPrice * 100))
	}

	out := ListProductsOutput{Products: []ProductOutput{}}
	for _, p := range products {
		if category != "" && strings.ToLower(strings.TrimSpace(p.Category)) != category {
			continue
		}
		if maxCents >= 0 && p.PriceCents > maxCents {
			continue
		}
		if len(out.Products) == limit {
			out.Truncated = true
			break
		}
		out.Products = append(out.Products, ProductOutput{
			Name:        p.Name,
			Description: p.Description,
			Category:    p.Category,
			Price:       p.Price(),
			Available:   p.Available,
		})
	}
	out.Count = len(out.Products)
	return out
}
