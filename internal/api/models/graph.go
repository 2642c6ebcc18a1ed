package models

import (
	"encoding/json"
	"errors"
	"sort"
)

// NodeRole classifies what a node contributes to a workflow, derived from
// its class type rather than from node ids, which differ per graph.
type NodeRole string

const (
	RoleLoader     NodeRole = "loader"
	RoleSampler    NodeRole = "sampler"
	RoleTextEncode NodeRole = "text_encode"
	RoleLatent     NodeRole = "latent"
	RoleDecode     NodeRole = "decode"
	RoleSave       NodeRole = "save"
	RoleClipSkip   NodeRole = "clip_skip"
	RoleLora       NodeRole = "lora"
	RoleControlNet NodeRole = "controlnet"
	RoleOther      NodeRole = "other"
)

// roleByClass maps backend class types to roles. Unknown classes fall
// through to RoleOther and are carried untouched.
var roleByClass = map[string]NodeRole{
	"CheckpointLoaderSimple":  RoleLoader,
	"CheckpointLoader":        RoleLoader,
	"UNETLoader":              RoleLoader,
	"UnetLoaderGGUF":          RoleLoader,
	"KSampler":                RoleSampler,
	"KSamplerAdvanced":        RoleSampler,
	"SamplerCustom":           RoleSampler,
	"SamplerCustomAdvanced":   RoleSampler,
	"CLIPTextEncode":          RoleTextEncode,
	"CLIPTextEncodeSDXL":      RoleTextEncode,
	"EmptyLatentImage":        RoleLatent,
	"EmptySD3LatentImage":     RoleLatent,
	"VAEDecode":               RoleDecode,
	"VAEDecodeTiled":          RoleDecode,
	"SaveImage":               RoleSave,
	"PreviewImage":            RoleSave,
	"CLIPSetLastLayer":        RoleClipSkip,
	"LoraLoader":              RoleLora,
	"LoraLoaderModelOnly":     RoleLora,
	"ControlNetLoader":        RoleControlNet,
	"ControlNetApply":         RoleControlNet,
	"ControlNetApplyAdvanced": RoleControlNet,
}

// RoleOf returns the role for a backend class type.
func RoleOf(classType string) NodeRole {
	if role, ok := roleByClass[classType]; ok {
		return role
	}
	return RoleOther
}

// Edge is a connection to another node's output slot. On the wire it is the
// two-element array ["sourceNodeId", slotIndex].
type Edge struct {
	Node string
	Slot int
}

// Input is one entry of a node's inputs map: either an Edge or a literal
// (string, number or bool). Exactly one of the two is set.
type Input struct {
	Edge    *Edge
	Literal any
}

// EdgeInput builds a connection input.
func EdgeInput(node string, slot int) Input {
	return Input{Edge: &Edge{Node: node, Slot: slot}}
}

// LiteralInput builds a literal input.
func LiteralInput(v any) Input {
	return Input{Literal: v}
}

// IsEdge reports whether the input is a connection rather than a literal.
func (in Input) IsEdge() bool {
	return in.Edge != nil
}

// String returns the literal as a string.
func (in Input) String() (string, bool) {
	s, ok := in.Literal.(string)
	return s, ok
}

// Float returns the literal as a float64. JSON numbers decode as float64.
func (in Input) Float() (float64, bool) {
	switch v := in.Literal.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Int returns the literal as an int, truncating a float literal.
func (in Input) Int() (int, bool) {
	f, ok := in.Float()
	return int(f), ok
}

// MarshalJSON writes an edge as ["node", slot] and a literal as itself.
func (in Input) MarshalJSON() ([]byte, error) {
	if in.Edge != nil {
		return json.Marshal([]any{in.Edge.Node, in.Edge.Slot})
	}
	return json.Marshal(in.Literal)
}

// UnmarshalJSON decodes the wire form. A two-element array of
// [string, number] is always a connection; everything else is a literal.
func (in *Input) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if arr, ok := raw.([]any); ok && len(arr) == 2 {
		node, nodeOk := arr[0].(string)
		slot, slotOk := arr[1].(float64)
		if nodeOk && slotOk {
			in.Edge = &Edge{Node: node, Slot: int(slot)}
			in.Literal = nil
			return nil
		}
	}
	in.Edge = nil
	in.Literal = raw
	return nil
}

// Node is a single workflow step: a backend class type plus its inputs.
type Node struct {
	Class  string
	Title  string
	Inputs map[string]Input
}

// Role classifies the node by its class type.
func (n Node) Role() NodeRole {
	return RoleOf(n.Class)
}

// Input returns the named input if present.
func (n Node) Input(name string) (Input, bool) {
	in, ok := n.Inputs[name]
	return in, ok
}

// HasInput reports whether the named input exists.
func (n Node) HasInput(name string) bool {
	_, ok := n.Inputs[name]
	return ok
}

// SetLiteral sets a literal input, allocating the inputs map if needed.
func (n *Node) SetLiteral(name string, v any) {
	if n.Inputs == nil {
		n.Inputs = make(map[string]Input)
	}
	n.Inputs[name] = LiteralInput(v)
}

// SetEdge sets a connection input, allocating the inputs map if needed.
func (n *Node) SetEdge(name, source string, slot int) {
	if n.Inputs == nil {
		n.Inputs = make(map[string]Input)
	}
	n.Inputs[name] = EdgeInput(source, slot)
}

type wireMeta struct {
	Title string `json:"title"`
}

type wireNode struct {
	Inputs    map[string]Input `json:"inputs"`
	ClassType string           `json:"class_type"`
	Meta      *wireMeta        `json:"_meta,omitempty"`
}

// MarshalJSON writes the backend wire form with class_type and _meta keys.
func (n Node) MarshalJSON() ([]byte, error) {
	w := wireNode{Inputs: n.Inputs, ClassType: n.Class}
	if w.Inputs == nil {
		w.Inputs = map[string]Input{}
	}
	if n.Title != "" {
		w.Meta = &wireMeta{Title: n.Title}
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads the backend wire form.
func (n *Node) UnmarshalJSON(data []byte) error {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	n.Class = w.ClassType
	n.Inputs = w.Inputs
	if w.Meta != nil {
		n.Title = w.Meta.Title
	} else {
		n.Title = ""
	}
	return nil
}

// Graph is a workflow in the backend's API format: node ids mapped to nodes.
// Edges reference node ids, so ids are stable identity within one graph.
type Graph map[string]Node

// ParseGraph decodes a graph from its wire JSON.
func ParseGraph(data []byte) (Graph, error) {
	if len(data) == 0 {
		return nil, errors.New("empty graph document")
	}
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return g, nil
}

// Clone returns a deep copy. Mutating the copy never touches the original,
// including nested input maps and edge values.
func (g Graph) Clone() Graph {
	if g == nil {
		return nil
	}
	out := make(Graph, len(g))
	for id, node := range g {
		cp := Node{Class: node.Class, Title: node.Title}
		if node.Inputs != nil {
			cp.Inputs = make(map[string]Input, len(node.Inputs))
			for name, in := range node.Inputs {
				c := Input{Literal: in.Literal}
				if in.Edge != nil {
					edge := *in.Edge
					c.Edge = &edge
				}
				cp.Inputs[name] = c
			}
		}
		out[id] = cp
	}
	return out
}

// SortedIDs returns all node ids in lexical order, for deterministic walks.
func (g Graph) SortedIDs() []string {
	ids := make([]string, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NodesByRole returns the ids of all nodes with the given role, sorted.
func (g Graph) NodesByRole(role NodeRole) []string {
	var ids []string
	for id, node := range g {
		if node.Role() == role {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// FirstByRole returns the first node with the given role in id order.
func (g Graph) FirstByRole(role NodeRole) (string, Node, bool) {
	ids := g.NodesByRole(role)
	if len(ids) == 0 {
		return "", Node{}, false
	}
	return ids[0], g[ids[0]], true
}

// HasRole reports whether any node carries the given role.
func (g Graph) HasRole(role NodeRole) bool {
	for _, node := range g {
		if node.Role() == role {
			return true
		}
	}
	return false
}
