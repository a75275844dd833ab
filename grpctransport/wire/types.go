// Package wire defines the messages and service contract for the four-
// method remote backplane RPC (SPEC_FULL.md §6): RegisterTags, Publish,
// GetLastValue, Subscribe.
//
// There is no protoc step in this environment, so these are hand-written
// plain Go structs rather than protoc-generated message types, and the
// service/client stubs in service.go are hand-written in the same shape
// protoc-gen-go-grpc would produce. codec.go registers a JSON-based
// encoding.Codec under the name "proto" so grpc-go's wire framing,
// streaming, and status handling stay fully real while the message
// encoding itself is plain JSON instead of protobuf's binary wire format.
// This is a deliberate, documented substitution, not a simulated network
// layer: HTTP/2 framing, unary and server-streaming RPC, metadata, and
// grpc status codes are all the genuine google.golang.org/grpc
// implementation.
package wire

// Role mirrors registry.Role on the wire as a string so the wire package
// does not need to import the registry package.
type Role string

const (
	RoleProducer Role = "Producer"
	RoleConsumer Role = "Consumer"
)

// Kind selects which typed field of a TagValue is populated, mirroring
// backplane.ValueKind on the wire.
type Kind string

const (
	KindBool   Kind = "bool"
	KindInt64  Kind = "int64"
	KindDouble Kind = "double"
	KindString Kind = "string"
	KindBytes  Kind = "bytes"
)

// Quality mirrors backplane.Quality on the wire.
type Quality string

const (
	QualityGood      Quality = "Good"
	QualityUncertain Quality = "Uncertain"
	QualityBad       Quality = "Bad"
)

// TagValue is the wire form of backplane.TagValue. Exactly one of the
// typed fields is meaningful, selected by Kind — the wire-level
// equivalent of the spec's `oneof { bool, int64, double, string, bytes }`.
type TagValue struct {
	Handle    uint32  `json:"handle"`
	Timestamp int64   `json:"timestamp"` // unix millis
	Quality   Quality `json:"quality"`
	Owner     string  `json:"source_plugin_instance_id"`
	Kind      Kind    `json:"kind"`

	BoolVal   bool    `json:"bool_val,omitempty"`
	Int64Val  int64   `json:"int64_val,omitempty"`
	DoubleVal float64 `json:"double_val,omitempty"`
	StringVal string  `json:"string_val,omitempty"`
	BytesVal  []byte  `json:"bytes_val,omitempty"`
}

// TagBatch is a repeated TagValue. It has no batch-level metadata fields.
type TagBatch struct {
	Values []TagValue `json:"values"`
}

// RegisterTagsItem is one entry of a RegisterTagsRequest.
type RegisterTagsItem struct {
	Path                   string `json:"tag_path"`
	Role                   Role   `json:"role"`
	SourcePluginInstanceID string `json:"source_plugin_instance_id,omitempty"`
}

// RegisterTagsRequest carries the requesting instance plus the items to
// register or recall.
type RegisterTagsRequest struct {
	PluginInstanceID string             `json:"plugin_instance_id"`
	Items            []RegisterTagsItem `json:"items"`
}

// AssignedTag is one resolved entry of a RegisterTagsResponse.
type AssignedTag struct {
	Path                    string `json:"tag_path"`
	Role                    Role   `json:"role"`
	Handle                  uint32 `json:"handle"`
	SourcePluginInstanceID  string `json:"source_plugin_instance_id"`
	ReferencePluginInstance string `json:"reference_plugin_instance_id"`
}

// RegisterTagsResponse is the reply to a RegisterTagsRequest.
type RegisterTagsResponse struct {
	Success  bool          `json:"success"`
	Message  string        `json:"message,omitempty"`
	Assigned []AssignedTag `json:"assigned"`
}

// PublishRequest carries either a single TagValue or a TagBatch.
type PublishRequest struct {
	Tag   *TagValue `json:"tag,omitempty"`
	Batch *TagBatch `json:"batch,omitempty"`
}

// PublishResponse is the reply to a PublishRequest.
type PublishResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// GetRequest asks for the last value of a handle.
type GetRequest struct {
	Handle uint32 `json:"handle"`
}

// GetResponse carries the last value, if any.
type GetResponse struct {
	Found bool      `json:"found"`
	Value *TagValue `json:"value,omitempty"`
}

// SubscribeRequest opens a server-stream of Update messages for a handle.
type SubscribeRequest struct {
	Handle       uint32 `json:"handle"`
	SubscriberID string `json:"subscriber_id,omitempty"`
}

// Update is one item sent down a Subscribe stream: either a single value or
// a batch.
type Update struct {
	Tag   *TagValue `json:"tag,omitempty"`
	Batch *TagBatch `json:"batch,omitempty"`
}
