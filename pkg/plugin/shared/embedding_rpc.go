package shared

import (
	"errors"
	"net/rpc"
)

// EmbeddingRPCClient is the RPC client for embedding providers.
type EmbeddingRPCClient struct {
	client *rpc.Client
}

// Name returns the provider name.
func (c *EmbeddingRPCClient) Name() string {
	var resp string
	err := c.client.Call("Plugin.Name", new(interface{}), &resp)
	if err != nil {
		return ""
	}
	return resp
}

// EmbedArgs are the arguments for the Embed RPC call.
type EmbedArgs struct {
	Text string
	Role string
}

// EmbedReply is the reply for the Embed RPC call.
type EmbedReply struct {
	Vector    []float32
	Error     string
	Retryable bool
}

// Embed generates the embedding of one text.
func (c *EmbeddingRPCClient) Embed(text, role string) ([]float32, error) {
	var resp EmbedReply
	err := c.client.Call("Plugin.Embed", &EmbedArgs{Text: text, Role: role}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &PluginError{Message: resp.Error, Retryable: resp.Retryable}
	}
	return resp.Vector, nil
}

// Dimensions returns the embedding dimensions.
func (c *EmbeddingRPCClient) Dimensions() int {
	var resp int
	err := c.client.Call("Plugin.Dimensions", new(interface{}), &resp)
	if err != nil {
		return 0
	}
	return resp
}

// Warmup warms up the provider.
func (c *EmbeddingRPCClient) Warmup() error {
	var resp string
	err := c.client.Call("Plugin.Warmup", new(interface{}), &resp)
	if err != nil {
		return err
	}
	if resp != "" {
		return &PluginError{Message: resp}
	}
	return nil
}

// Close closes the provider.
func (c *EmbeddingRPCClient) Close() error {
	var resp string
	err := c.client.Call("Plugin.Close", new(interface{}), &resp)
	if err != nil {
		return err
	}
	if resp != "" {
		return &PluginError{Message: resp}
	}
	return nil
}

// EmbeddingRPCServer is the RPC server for embedding providers.
type EmbeddingRPCServer struct {
	Impl EmbeddingProvider
}

// Name returns the provider name.
func (s *EmbeddingRPCServer) Name(args interface{}, resp *string) error {
	*resp = s.Impl.Name()
	return nil
}

// Embed generates the embedding of one text.
func (s *EmbeddingRPCServer) Embed(args *EmbedArgs, resp *EmbedReply) error {
	vec, err := s.Impl.Embed(args.Text, args.Role)
	if err != nil {
		resp.Error = err.Error()
		var pe *PluginError
		resp.Retryable = errors.As(err, &pe) && pe.Retryable
		return nil
	}
	resp.Vector = vec
	return nil
}

// Dimensions returns the embedding dimensions.
func (s *EmbeddingRPCServer) Dimensions(args interface{}, resp *int) error {
	*resp = s.Impl.Dimensions()
	return nil
}

// Warmup warms up the provider.
func (s *EmbeddingRPCServer) Warmup(args interface{}, resp *string) error {
	err := s.Impl.Warmup()
	if err != nil {
		*resp = err.Error()
	}
	return nil
}

// Close closes the provider.
func (s *EmbeddingRPCServer) Close(args interface{}, resp *string) error {
	err := s.Impl.Close()
	if err != nil {
		*resp = err.Error()
	}
	return nil
}

// PluginError represents an error from a plugin. Plugins return it with
// Retryable set when a later attempt may succeed.
type PluginError struct {
	Message   string
	Retryable bool
}

func (e *PluginError) Error() string {
	return e.Message
}
