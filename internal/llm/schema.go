package llm

import "google.golang.org/genai"

func pageSchema() *genai.Schema {
	coord := func() *genai.Schema { return &genai.Schema{Type: genai.TypeInteger} }
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"markdown": {Type: genai.TypeString},
			"figures": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"ymin":  coord(),
						"xmin":  coord(),
						"ymax":  coord(),
						"xmax":  coord(),
						"label": {Type: genai.TypeString},
					},
					Required: []string{"ymin", "xmin", "ymax", "xmax"},
				},
			},
		},
		Required: []string{"markdown", "figures"},
	}
}

func chemistrySchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"smiles": {Type: genai.TypeString},
			"confidence": {
				Type: genai.TypeString,
				Enum: []string{"High", "Medium", "Low"},
			},
		},
		Required: []string{"smiles", "confidence"},
	}
}
