package index

// Analyzer applied to the merged search-text fields. Snowball stemming keeps
// keyword queries tolerant of inflection.
const textAnalyzer = "platform_analyzer_text"

// coreProperties is the fixed field set every index carries. The identifier
// and tenant fields are keywords so queries can match them exactly without
// tokenization.
func coreProperties() map[string]any {
	return map[string]any{
		"id":         map[string]any{"type": "keyword"},
		"entityName": map[string]any{"type": "keyword"},
		"entityType": map[string]any{"type": "keyword"},

		"solutionId":     map[string]any{"type": "keyword"},
		"organizationId": map[string]any{"type": "keyword"},

		"ownerId":         map[string]any{"type": "keyword"},
		"ownerEntityName": map[string]any{"type": "keyword"},
		"ownerEntityType": map[string]any{"type": "keyword"},

		"createdBy":   map[string]any{"type": "keyword"},
		"modifiedBy":  map[string]any{"type": "keyword"},
		"ownedBy":     map[string]any{"type": "keyword"},
		"publishedBy": map[string]any{"type": "keyword"},

		"domain":   map[string]any{"type": "keyword"},
		"currency": map[string]any{"type": "keyword"},
		"country":  map[string]any{"type": "keyword"},
		"city":     map[string]any{"type": "keyword"},
		"language": map[string]any{"type": "keyword"},
		"type":     map[string]any{"type": "keyword"},

		"createdOn":   map[string]any{"type": "date"},
		"modifiedOn":  map[string]any{"type": "date"},
		"ownedOn":     map[string]any{"type": "date"},
		"publishedOn": map[string]any{"type": "date"},

		"tags":          map[string]any{"type": "text", "boost": 3},
		"tagsLowerCase": map[string]any{"type": "text", "boost": 3},
		"categoryIds":   map[string]any{"type": "text"},

		"isGlobal":    map[string]any{"type": "boolean"},
		"isPublished": map[string]any{"type": "boolean"},
		"isSubmitted": map[string]any{"type": "boolean"},
		"isApproved":  map[string]any{"type": "boolean"},

		"stateCode":  map[string]any{"type": "keyword"},
		"statusCode": map[string]any{"type": "keyword"},

		"geoLocation": map[string]any{"type": "geo_point"},
		"geoShape":    map[string]any{"type": "geo_shape"},

		"prevPrice":    map[string]any{"type": "float"},
		"currentPrice": map[string]any{"type": "float"},

		"ipAddress": map[string]any{"type": "ip"},

		"searchDisplay": map[string]any{"type": "text", "boost": 2, "analyzer": textAnalyzer},
		"searchContent": map[string]any{"type": "text", "analyzer": textAnalyzer},
	}
}

// BuildMapping returns the full index creation body: analysis settings plus
// the core properties merged with entity-specific extra fields. Extra fields
// never override core fields.
func BuildMapping(extraFields map[string]map[string]any) map[string]any {
	properties := coreProperties()
	for name, spec := range extraFields {
		if _, reserved := properties[name]; reserved {
			continue
		}
		fieldSpec := make(map[string]any, len(spec))
		for k, v := range spec {
			fieldSpec[k] = v
		}
		properties[name] = fieldSpec
	}

	return map[string]any{
		"settings": map[string]any{
			"analysis": map[string]any{
				"analyzer": map[string]any{
					textAnalyzer: map[string]any{
						"tokenizer": "standard",
						"filter":    []string{"lowercase", "platform_snowball"},
					},
				},
				"filter": map[string]any{
					"platform_snowball": map[string]any{
						"type":     "snowball",
						"language": "English",
					},
				},
			},
		},
		"mappings": map[string]any{
			"properties": properties,
		},
	}
}
