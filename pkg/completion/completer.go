// Package completion proposes the next tokens of a partially typed
// operation request, using live metadata from the controller.
package completion

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/wildfly/wildfly-core-sub044/pkg/address"
	"github.com/wildfly/wildfly-core-sub044/pkg/operation"
	"github.com/wildfly/wildfly-core-sub044/pkg/rollout"
)

// Result holds completion candidates.
type Result struct {
	Candidates []string
	// Offset is where the candidates replace the buffer, or -1 when
	// nothing can be completed.
	Offset      int
	AppendSpace bool
}

var none = Result{Offset: -1}

func result(candidates []string, offset int) Result {
	if len(candidates) == 0 {
		return none
	}
	return Result{Candidates: candidates, Offset: offset}
}

// Completer completes operation requests. It reuses one lenient
// ParsedRequest, so calls must not run concurrently.
type Completer struct {
	provider Provider
	headers  Headers
	req      *operation.ParsedRequest
}

// New returns a completer. Nil headers select DefaultHeaders.
func New(p Provider, headers Headers) *Completer {
	if headers == nil {
		headers = DefaultHeaders()
	}
	return &Completer{
		provider: p,
		headers:  headers,
		req:      operation.NewParsedRequest(operation.Lenient),
	}
}

// Complete proposes candidates for buffer[:cursor] relative to the
// address prefix. Failures never propagate: they yield no candidates.
func (c *Completer) Complete(ctx context.Context, prefix *address.Address, buffer string, cursor int) Result {
	if cursor < 0 || cursor > len(buffer) {
		cursor = len(buffer)
	}
	line := buffer[:cursor]
	if err := c.req.Parse(prefix, line); err != nil {
		slog.Debug("completion parse failed", "line", line, "err", err)
		return none
	}
	res, err := c.complete(ctx, line)
	if err != nil {
		slog.Debug("completion metadata unavailable", "line", line, "err", err)
		return none
	}
	return res
}

func (c *Completer) complete(ctx context.Context, line string) (Result, error) {
	req := c.req
	if rh := req.RolloutHandler(); rh != nil && rh.EndState() != "" {
		return c.completeRollout(ctx, rh, line)
	}
	end := len(line)
	switch req.EndState() {
	case operation.StateAddress:
		return c.completeSegment(ctx, req.Address().Clone(), "", end)
	case operation.StateNodeType:
		return c.completeTypeOrName(ctx, line)
	case operation.StateNodeName:
		if req.Separator() == operation.SeparatorNodeTypeName {
			return c.completeSegment(ctx, req.Address().Clone(), "", end)
		}
		return c.completeTypedName(ctx, line)
	case operation.StateOperation:
		return c.completeOperation(ctx, line)
	case operation.StatePropertyList:
		return c.completePropertyList(ctx)
	case operation.StateProperty:
		return c.completeProperty(ctx, line)
	case operation.StatePropertyValue:
		return c.completePropertyValue(ctx, line)
	case operation.StateHeaderList:
		return c.completeHeaderList(end), nil
	case operation.StateHeader:
		return c.completeHeader(line), nil
	case operation.StateHeaderValue:
		return c.completeHeaderValue(ctx, line), nil
	case operation.StateRequest:
		if strings.TrimSpace(line) == "" {
			return c.completeSegment(ctx, req.Address().Clone(), "", end)
		}
		if req.OperationComplete() && !req.HasHeaderList() && !req.HasOperator() {
			return result([]string{"{"}, end), nil
		}
	}
	return none, nil
}

// completeSegment proposes node names when addr ends on a type and node
// types otherwise.
func (c *Completer) completeSegment(ctx context.Context, addr *address.Address, prefix string, offset int) (Result, error) {
	if addr.EndsOnType() {
		nodeType := addr.NodeType()
		if err := addr.ToParentNode(); err != nil {
			return none, err
		}
		names, err := c.provider.NodeNames(ctx, addr, nodeType)
		if err != nil {
			return none, err
		}
		return result(quoteAll(filter(names, prefix)), offset), nil
	}
	types, err := c.provider.NodeTypes(ctx, addr)
	if err != nil {
		return none, err
	}
	matches := filter(types, prefix)
	if len(matches) == 1 && matches[0] == prefix {
		matches[0] += "="
	}
	return result(matches, offset), nil
}

// completeTypeOrName handles a segment typed without '='. The parser has
// already resolved it into the address as a type or as a name.
func (c *Completer) completeTypeOrName(ctx context.Context, line string) (Result, error) {
	addr := c.req.Address().Clone()
	start := c.req.LastChunkIndex()
	typed := address.Unquote(line[start:])
	if addr.EndsOnType() {
		if err := addr.ToParentNode(); err != nil {
			return none, err
		}
		return c.completeSegment(ctx, addr, typed, start)
	}
	return c.completeTypedName(ctx, line)
}

// completeTypedName proposes names for the partially typed last node.
func (c *Completer) completeTypedName(ctx context.Context, line string) (Result, error) {
	addr := c.req.Address().Clone()
	start := c.req.LastChunkIndex()
	nodeType := addr.NodeType()
	if err := addr.ToParentNode(); err != nil {
		return none, err
	}
	if err := addr.ToNodeType(nodeType); err != nil {
		return none, err
	}
	return c.completeSegment(ctx, addr, address.Unquote(line[start:]), start)
}

func (c *Completer) completeOperation(ctx context.Context, line string) (Result, error) {
	req := c.req
	end := len(line)
	if req.IsPropertyListEnded() {
		if req.HasHeaderList() {
			return none, nil
		}
		return result([]string{"{"}, end), nil
	}
	offset := req.LastChunkIndex()
	if req.Separator() == operation.SeparatorAddressOperation {
		offset = req.LastSeparatorIndex() + 1
	}
	typed := line[offset:]
	names, err := c.provider.OperationNames(ctx, req.Address())
	if err != nil {
		return none, err
	}
	matches := filter(names, typed)
	if len(matches) == 1 && matches[0] == typed {
		return result([]string{"("}, end), nil
	}
	return result(matches, offset), nil
}

func (c *Completer) properties(ctx context.Context) ([]Property, error) {
	return c.provider.OperationProperties(ctx, c.req.Address(), c.req.Operation())
}

func (c *Completer) completePropertyList(ctx context.Context) (Result, error) {
	req := c.req
	end := len(req.OriginalLine())
	switch req.Separator() {
	case operation.SeparatorPropertyListStart, operation.SeparatorProperty:
	default:
		return none, nil
	}
	props, err := c.properties(ctx)
	if err != nil {
		return none, err
	}
	remaining := without(propertyNames(props, false), req.PropertyNames()...)
	if len(remaining) == 0 {
		return result([]string{")"}, end), nil
	}
	return result(filter(remaining, ""), end), nil
}

func (c *Completer) completeProperty(ctx context.Context, line string) (Result, error) {
	req := c.req
	props, err := c.properties(ctx)
	if err != nil {
		return none, err
	}
	if req.Separator() == operation.SeparatorNotOperator {
		names := without(propertyNames(props, true), req.PropertyNames()...)
		return result(filter(names, ""), req.LastSeparatorIndex()+1), nil
	}
	start := req.LastChunkIndex()
	typed := line[start:]
	negated := req.IsLastPropertyNegated()
	present := without(req.PropertyNames(), req.LastPropertyName())
	matches := filter(without(propertyNames(props, negated), present...), typed)
	if len(matches) == 1 && matches[0] == typed && !negated {
		matches[0] += "="
	}
	return result(matches, start), nil
}

func (c *Completer) completePropertyValue(ctx context.Context, line string) (Result, error) {
	req := c.req
	offset := req.LastChunkIndex()
	if req.Separator() == operation.SeparatorPropertyNameValue {
		offset = req.LastSeparatorIndex() + 1
	}
	typed := strings.TrimSpace(line[offset:])
	props, err := c.properties(ctx)
	if err != nil {
		return none, err
	}
	i := slices.IndexFunc(props, func(p Property) bool { return p.Name == req.LastPropertyName() })
	if i < 0 {
		return none, nil
	}
	prop := props[i]
	switch {
	case strings.EqualFold(prop.Type, "BOOLEAN"):
		return result(Booleans(ctx, typed), offset), nil
	case len(prop.Allowed) > 0:
		return result(filter(prop.Allowed, typed), offset), nil
	case prop.CapabilityReference != "":
		caps, err := c.provider.SuggestCapabilities(ctx, req.Address(), prop.CapabilityReference)
		if err != nil {
			return none, err
		}
		return result(filter(caps, typed), offset), nil
	}
	return none, nil
}

func (c *Completer) completeHeaderList(end int) Result {
	req := c.req
	switch req.Separator() {
	case operation.SeparatorHeaderListStart, operation.SeparatorHeader:
	default:
		return none
	}
	remaining := without(c.headers.names(rollout.Keyword), req.HeaderNames()...)
	if len(remaining) == 0 {
		return result([]string{"}"}, end)
	}
	return result(remaining, end)
}

func (c *Completer) completeHeader(line string) Result {
	req := c.req
	start := req.LastChunkIndex()
	typed := line[start:]
	present := without(req.HeaderNames(), req.LastHeaderName())
	matches := filter(without(c.headers.names(rollout.Keyword), present...), typed)
	if len(matches) == 1 && matches[0] == typed {
		matches[0] += "="
	}
	return result(matches, start)
}

func (c *Completer) completeHeaderValue(ctx context.Context, line string) Result {
	req := c.req
	complete, ok := c.headers[req.LastHeaderName()]
	if !ok || complete == nil {
		return none
	}
	offset := req.LastChunkIndex()
	if req.Separator() == operation.SeparatorHeaderNameValue {
		offset = req.LastSeparatorIndex() + 1
	}
	return result(complete(ctx, strings.TrimSpace(line[offset:])), offset)
}

func propertyNames(props []Property, booleansOnly bool) []string {
	out := make([]string, 0, len(props))
	for _, p := range props {
		if booleansOnly && !strings.EqualFold(p.Type, "BOOLEAN") {
			continue
		}
		out = append(out, p.Name)
	}
	return out
}

func quoteAll(names []string) []string {
	for i, n := range names {
		names[i] = address.Quote(n)
	}
	return names
}
