package visualization

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/anggasct/inspectflow"
)

// DOTGenerator generates Graphviz DOT format representations of the workflow
type DOTGenerator struct {
	table   inspectflow.TransitionTable
	options DOTOptions
}

// DOTOptions configures the DOT generation
type DOTOptions struct {
	ShowRoles   bool
	ShowEffects bool
	// ShowSelfLoops draws re-sign and first joint signer rows
	ShowSelfLoops bool
	// CompactMode merges rows with the same endpoints and action into one edge
	CompactMode     bool
	RankDirection   string // "TB", "LR", "BT", "RL"
	NodeShape       string
	TransitionStyle string
	RejectStyle     string
}

// DefaultDOTOptions returns sensible default options for DOT generation
func DefaultDOTOptions() DOTOptions {
	return DOTOptions{
		ShowRoles:       true,
		ShowEffects:     false,
		ShowSelfLoops:   true,
		CompactMode:     true,
		RankDirection:   "TB",
		NodeShape:       "box",
		TransitionStyle: "solid",
		RejectStyle:     "dashed",
	}
}

// NewDOTGenerator creates a new DOT generator for the given transition table
func NewDOTGenerator(table inspectflow.TransitionTable, options ...DOTOptions) *DOTGenerator {
	opts := DefaultDOTOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	return &DOTGenerator{
		table:   table,
		options: opts,
	}
}

// Generate creates a DOT representation of the workflow
func (g *DOTGenerator) Generate() (string, error) {
	if len(g.table) == 0 {
		return "", fmt.Errorf("transition table is empty")
	}

	var dot strings.Builder

	dot.WriteString("digraph InspectionWorkflow {\n")
	dot.WriteString(fmt.Sprintf("  rankdir=%s;\n", g.options.RankDirection))
	dot.WriteString(fmt.Sprintf("  node [shape=%s];\n", g.options.NodeShape))
	dot.WriteString("  edge [fontsize=10];\n\n")

	g.generateStates(&dot)
	g.generateTransitions(&dot)

	dot.WriteString("}\n")

	return dot.String(), nil
}

// generateStates generates DOT nodes for every status the table mentions
func (g *DOTGenerator) generateStates(dot *strings.Builder) {
	used := make(map[inspectflow.Status]bool)
	for _, t := range g.table {
		used[t.From] = true
		used[t.To] = true
	}

	dot.WriteString("  // States\n")
	for _, status := range inspectflow.AllStatuses {
		if used[status] {
			g.generateStateNode(dot, status)
		}
	}
	dot.WriteString("\n")
}

// generateStateNode generates a DOT node for a single status
func (g *DOTGenerator) generateStateNode(dot *strings.Builder, status inspectflow.Status) {
	shape := g.options.NodeShape
	fillColor := "lightblue"
	label := string(status)

	switch status {
	case inspectflow.StatusSubmitted:
		fillColor = "lightgreen"
		label += "\\n(initial)"
	case inspectflow.StatusBDProcurementReview:
		fillColor = "lavender"
		label += "\\n[join]"
	case inspectflow.StatusCompleted:
		shape = "doublecircle"
		fillColor = "lightcoral"
	case inspectflow.StatusRejected:
		fillColor = "lightyellow"
	}

	dot.WriteString(fmt.Sprintf("  \"%s\" [shape=%s style=\"filled\" fillcolor=%s label=\"%s\"];\n",
		status, shape, fillColor, label))
}

type edge struct {
	from, to inspectflow.Status
	action   inspectflow.Action
	roles    []inspectflow.Role
	effects  []string
}

// generateTransitions generates DOT edges in table order
func (g *DOTGenerator) generateTransitions(dot *strings.Builder) {
	dot.WriteString("  // Transitions\n")

	var edges []*edge
	index := make(map[string]*edge)
	for _, t := range g.table {
		if t.SelfLoop() && !g.options.ShowSelfLoops {
			continue
		}
		key := fmt.Sprintf("%s|%s|%s", t.From, t.To, t.Action)
		if !g.options.CompactMode {
			key += "|" + string(t.Role) + "|" + t.Effect
		}
		e, ok := index[key]
		if !ok {
			e = &edge{from: t.From, to: t.To, action: t.Action}
			index[key] = e
			edges = append(edges, e)
		}
		e.roles = appendUnique(e.roles, t.Role)
		if t.Effect != "" {
			e.effects = appendUniqueString(e.effects, t.Effect)
		}
	}

	for _, e := range edges {
		style := g.options.TransitionStyle
		if e.action == inspectflow.ActionReject {
			style = g.options.RejectStyle
		}
		dot.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [label=\"%s\" style=%s];\n",
			e.from, e.to, g.edgeLabel(e), style))
	}
}

func (g *DOTGenerator) edgeLabel(e *edge) string {
	label := string(e.action)
	if g.options.ShowRoles {
		names := make([]string, len(e.roles))
		for i, r := range e.roles {
			names[i] = string(r)
		}
		sort.Strings(names)
		label += "\\n[" + strings.Join(names, ", ") + "]"
	}
	if g.options.ShowEffects && len(e.effects) > 0 {
		label += "\\n/ " + strings.Join(e.effects, "; ")
	}
	return label
}

func appendUnique(roles []inspectflow.Role, role inspectflow.Role) []inspectflow.Role {
	for _, r := range roles {
		if r == role {
			return roles
		}
	}
	return append(roles, role)
}

func appendUniqueString(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// GenerateToFile writes the DOT representation to a file
func (g *DOTGenerator) GenerateToFile(filename string) error {
	content, err := g.Generate()
	if err != nil {
		return err
	}

	return os.WriteFile(filename, []byte(content), 0644)
}

// SVGGenerator generates SVG representations by calling Graphviz
type SVGGenerator struct {
	dotGenerator *DOTGenerator
}

// NewSVGGenerator creates a new SVG generator
func NewSVGGenerator(table inspectflow.TransitionTable, options ...DOTOptions) *SVGGenerator {
	return &SVGGenerator{
		dotGenerator: NewDOTGenerator(table, options...),
	}
}

// Generate creates an SVG representation of the workflow
func (g *SVGGenerator) Generate() (string, error) {
	dotContent, err := g.dotGenerator.Generate()
	if err != nil {
		return "", err
	}

	cmd := exec.Command("dot", "-Tsvg")
	cmd.Stdin = strings.NewReader(dotContent)

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to execute dot command: %w (make sure Graphviz is installed)", err)
	}

	return out.String(), nil
}

// GenerateSVG creates an SVG representation of the workflow
func (g *DOTGenerator) GenerateSVG() (string, error) {
	svgGen := &SVGGenerator{dotGenerator: g}
	return svgGen.Generate()
}
