package petdata

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-go-golems/petfood-agent/pkg/inference/engine"
	"github.com/pkg/errors"
)

const (
	ToolSearchPets  = "search_pets"
	ToolGetPetFoods = "get_pet_foods"
)

type searchArgs struct {
	Query string `json:"query"`
}

// Tools returns the lookups the model may call. Lookup failures are returned
// to the model as {"error": "..."} so it can explain them; only malformed
// arguments surface as Go errors.
func (c *Client) Tools() []engine.Tool {
	return []engine.Tool{
		{
			Name:        ToolSearchPets,
			Description: "Search for pet information using the pets API",
			Parameters: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string",` +
				`"description":"Free-text pet search, e.g. a name, breed or id"}},"required":["query"]}`),
			Call: func(ctx context.Context, arguments string) (string, error) {
				var args searchArgs
				if arguments != "" {
					if err := json.Unmarshal([]byte(arguments), &args); err != nil {
						return "", errors.Wrap(err, "search_pets: decode arguments")
					}
				}
				body, err := c.SearchPets(ctx, args.Query)
				if err != nil {
					return errorResult("Failed to search pets", err), nil
				}
				return string(body), nil
			},
		},
		{
			Name:        ToolGetPetFoods,
			Description: "Get available pet foods from the foods API",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
			Call: func(ctx context.Context, _ string) (string, error) {
				body, err := c.ListFoods(ctx)
				if err != nil {
					return errorResult("Failed to fetch pet foods", err), nil
				}
				return string(body), nil
			},
		},
	}
}

func errorResult(prefix string, err error) string {
	b, _ := json.Marshal(map[string]string{"error": fmt.Sprintf("%s: %s", prefix, err)})
	return string(b)
}
