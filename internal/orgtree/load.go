package orgtree

import (
	"encoding/json"
	"fmt"
	"io"
)

// Load reads an org hierarchy from JSON, a list of root nodes.
func Load(r io.Reader) ([]*Node, error) {
	var roots []*Node
	dec := json.NewDecoder(r)
	if err := dec.Decode(&roots); err != nil {
		return nil, fmt.Errorf("decode org tree: %w", err)
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("org tree has no roots")
	}
	var check func(n *Node, path string) error
	seen := map[string]string{}
	check = func(n *Node, path string) error {
		if n.ID == "" {
			return fmt.Errorf("node under %q has no id", path)
		}
		if prev, dup := seen[n.ID]; dup {
			return fmt.Errorf("duplicate org id %q (under %q and %q)", n.ID, prev, path)
		}
		seen[n.ID] = path
		for _, c := range n.Children {
			if err := check(c, n.ID); err != nil {
				return err
			}
		}
		return nil
	}
	for _, n := range roots {
		if err := check(n, ""); err != nil {
			return nil, err
		}
	}
	return roots, nil
}
