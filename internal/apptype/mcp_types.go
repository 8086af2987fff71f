package apptype

// Tool argument and result types for the MCP surface. Argument fields
// without omitempty are required by the generated input schemas.

// AddNoteArgs represents the arguments for the add_note tool
type AddNoteArgs struct {
	Title   string   `json:"title,omitempty" jsonschema:"Optional note title. Defaults to the first 50 characters of the content."`
	Content string   `json:"content" jsonschema:"The note body to ingest."`
	Tags    []string `json:"tags,omitempty" jsonschema:"Optional free-form tags stored on the note."`
}

// ImportNotesArgs represents the arguments for the import_notes tool
type ImportNotesArgs struct {
	Notes []AddNoteArgs `json:"notes" jsonschema:"Notes to ingest. Each note succeeds or fails independently."`
}

// ImportFailure reports one note that failed during a batch import.
type ImportFailure struct {
	Index int    `json:"index"`
	Title string `json:"title,omitempty"`
	Error string `json:"error"`
}

// ImportNotesResult summarizes a batch import.
type ImportNotesResult struct {
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	NoteIDs   []string        `json:"noteIds"`
	Failed    []ImportFailure `json:"failed"`
}

// QueryArgs represents the arguments for the query tool
type QueryArgs struct {
	Query         string `json:"query" jsonschema:"Natural-language question or keywords."`
	MaxResults    int    `json:"maxResults,omitempty" jsonschema:"Number of embedding-search seeds (default 10)."`
	UseGeneration bool   `json:"useGeneration,omitempty" jsonschema:"Ask the language model to compose an answer when one is available."`
	IncludeTrace  bool   `json:"includeTrace,omitempty" jsonschema:"Return the ordered traversal events alongside the result."`
}

// TraceStep is one traversal event as returned by the query tool.
type TraceStep struct {
	Seq        int     `json:"seq"`
	Phase      string  `json:"phase"`
	NodeID     string  `json:"nodeId,omitempty"`
	EdgeID     string  `json:"edgeId,omitempty"`
	Score      float64 `json:"score"`
	Discovered bool    `json:"discovered,omitempty"`
	DelayMs    int     `json:"delayMs,omitempty"`
}

// QueryToolResult is a QueryResult plus its optional trace.
type QueryToolResult struct {
	QueryResult
	Trace []TraceStep `json:"trace,omitempty"`
}

// ReadGraphArgs represents the arguments for the read_graph tool
type ReadGraphArgs struct{}

// GraphResult is a full snapshot of live nodes and edges.
type GraphResult struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// GraphStateArgs represents the arguments for the graph_state tool
type GraphStateArgs struct{}

// RecentAdaptationsArgs represents the arguments for the recent_adaptations tool
type RecentAdaptationsArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of events, newest first (default 20)."`
}

// AdaptationsResult lists audit events newest first.
type AdaptationsResult struct {
	Events []AdaptationEvent `json:"events"`
}

// SchemaTypesArgs represents the arguments for the schema_types tool
type SchemaTypesArgs struct{}

// SchemaResult lists registered schema types.
type SchemaResult struct {
	Types []SchemaType `json:"types"`
}

// MergeEntitiesArgs represents the arguments for the merge_entities tool
type MergeEntitiesArgs struct {
	KeepID   string   `json:"keepId" jsonschema:"Id of the node that survives the merge."`
	MergeIDs []string `json:"mergeIds" jsonschema:"Ids of the nodes folded into keepId."`
}

// NodeResult wraps a single node.
type NodeResult struct {
	Node Node `json:"node"`
}

// EdgeFeedbackArgs represents the arguments for the confirm_edge and reject_edge tools
type EdgeFeedbackArgs struct {
	EdgeID string `json:"edgeId" jsonschema:"Id of the edge to confirm or reject."`
}

// EdgeResult wraps a single edge.
type EdgeResult struct {
	Edge Edge `json:"edge"`
}

// SuggestTypeArgs represents the arguments for the suggest_type tool
type SuggestTypeArgs struct {
	Examples []string `json:"examples" jsonschema:"Example entity names that share an unknown category."`
	Register bool     `json:"register,omitempty" jsonschema:"Register the suggested name as a schema type."`
}

// SuggestTypeResult is the proposed type and whether it was registered.
type SuggestTypeResult struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Registered  bool   `json:"registered"`
}

// DefineTypeArgs represents the arguments for the define_type tool
type DefineTypeArgs struct {
	Name        string `json:"name" jsonschema:"Type name: letters, digits, underscore or dash."`
	EvolvedFrom string `json:"evolvedFrom,omitempty" jsonschema:"Optional parent type this one specializes."`
}

// DefineTypeResult reports the normalized name and whether it was new.
type DefineTypeResult struct {
	Name    string `json:"name"`
	Created bool   `json:"created"`
}

// ClearGraphArgs represents the arguments for the clear_graph tool
type ClearGraphArgs struct {
	Confirm bool `json:"confirm" jsonschema:"Must be true. Deletes every node, edge, adaptation event and non-seed type."`
}

// HealthArgs represents the arguments for the health_check tool
type HealthArgs struct{}

// HealthResult reports server configuration and liveness.
type HealthResult struct {
	Name               string `json:"name"`
	Version            string `json:"version"`
	Revision           string `json:"revision,omitempty"`
	BuildDate          string `json:"buildDate,omitempty"`
	EmbeddingDims      int    `json:"embeddingDims"`
	EmbeddingsProvider string `json:"embeddingsProvider"`
	VectorBackend      string `json:"vectorBackend"`
	Extractor          string `json:"extractor"`
	LLMProvider        string `json:"llmProvider"`
	LLMAvailable       bool   `json:"llmAvailable"`
	NodeCount          int    `json:"nodeCount"`
	EdgeCount          int    `json:"edgeCount"`
}
