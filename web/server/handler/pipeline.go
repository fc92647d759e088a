package handler

// Pipeline defines the processing stages for HTTP requests and responses.
// It provides a fluent interface for configuring processors.
type Pipeline struct {
	requestProcessors  []RequestProcessor
	responseProcessors []ResponseProcessor
	serializer         Serializer
}

// NewPipeline creates a new pipeline that serializes responses as JSON.
func NewPipeline() *Pipeline {
	return &Pipeline{serializer: JSON()}
}

// ProcessRequest adds one or more request processors to the pipeline.
func (p *Pipeline) ProcessRequest(processor ...RequestProcessor) *Pipeline {
	p.requestProcessors = append(p.requestProcessors, processor...)
	return p
}

// ProcessResponse adds one or more response processors to the pipeline. They
// run after serialization, in the order they were added.
func (p *Pipeline) ProcessResponse(processor ...ResponseProcessor) *Pipeline {
	p.responseProcessors = append(p.responseProcessors, processor...)
	return p
}

// Serializer sets the response serializer.
func (p *Pipeline) Serializer(s Serializer) *Pipeline {
	p.serializer = s
	return p
}
