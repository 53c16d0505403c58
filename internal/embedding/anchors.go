package embedding

// Concept names a bundle of exemplar phrases whose embeddings define a
// semantic neighborhood. The set is fixed at build time.
type Concept string

const (
	ConceptUserData    Concept = "USER_DATA"
	ConceptSensitive   Concept = "SENSITIVE"
	ConceptReturnsData Concept = "RETURNS_DATA"
	ConceptIdempotent  Concept = "IDEMPOTENT"
	ConceptMutation    Concept = "MUTATION"
)

// AllConcepts lists every concept in registration order.
var AllConcepts = []Concept{
	ConceptUserData,
	ConceptSensitive,
	ConceptReturnsData,
	ConceptIdempotent,
	ConceptMutation,
}

// conceptPhrases are the exemplar phrases per concept. Each phrase is
// embedded exactly once during anchor initialization.
var conceptPhrases = map[Concept][]string{
	ConceptUserData: {
		"user input",
		"text entered by the user",
		"user query",
		"search term from the user",
		"message written by a person",
		"user provided value",
		"question asked by the user",
		"free form text input",
	},
	ConceptSensitive: {
		"password",
		"secret credential",
		"api key",
		"access token",
		"private key",
		"authentication secret",
		"security credential",
		"personal identification number",
	},
	ConceptReturnsData: {
		"returns data to the caller",
		"fetches a record",
		"retrieves information",
		"gets the current value",
		"lists matching items",
		"looks up an entry",
		"queries and returns results",
		"reads and returns content",
	},
	ConceptIdempotent: {
		"safe to retry",
		"idempotent operation",
		"calling twice has no extra effect",
		"repeatable without side effects",
		"read only operation",
	},
	ConceptMutation: {
		"creates a new record",
		"updates existing data",
		"deletes an entry",
		"modifies state",
		"writes changes",
		"sends a message",
		"submits a transaction",
		"changes the configuration",
	},
}

// ConceptPhrases returns the exemplar phrases for a concept.
func ConceptPhrases(c Concept) []string {
	return conceptPhrases[c]
}
