package grove

import (
	"fmt"
	"io"

	"grove/internal/base"
)

// PrintTree writes a textual dump of every node, pre-order from the
// root, to w. Debug aid only; it takes no stable snapshot.
func (t *BTree) PrintTree(w io.Writer) error {
	root, err := t.RootPageID()
	if err != nil {
		return err
	}
	if root == base.InvalidPageID {
		_, err := fmt.Fprintln(w, "empty tree")
		return err
	}
	return t.printPage(w, root)
}

func (t *BTree) printPage(w io.Writer, pid base.PageID) error {
	g, err := t.pool.FetchRead(pid)
	if err != nil {
		return err
	}

	node := base.ViewNode(g.Page())
	if node.IsLeaf() {
		leaf := base.AsLeaf(g.Page())
		fmt.Fprintf(w, "Leaf Page: %d\tNext: %d\n", pid, leaf.Next())
		fmt.Fprintf(w, "Contents: ")
		for i := 0; i < leaf.Size(); i++ {
			if i > 0 {
				fmt.Fprintf(w, ", ")
			}
			fmt.Fprintf(w, "%s", t.formatKey(leaf.KeyAt(i)))
		}
		fmt.Fprintf(w, "\n\n")
		g.Drop()
		return nil
	}

	in := base.AsInternal(g.Page())
	fmt.Fprintf(w, "Internal Page: %d\n", pid)
	fmt.Fprintf(w, "Contents: ")
	children := make([]base.PageID, in.Size())
	for i := 0; i < in.Size(); i++ {
		if i > 0 {
			fmt.Fprintf(w, ", ")
		}
		fmt.Fprintf(w, "%s: %d", t.formatKey(in.KeyAt(i)), in.ChildAt(i))
		children[i] = in.ChildAt(i)
	}
	fmt.Fprintf(w, "\n\n")
	g.Drop()

	for _, child := range children {
		if err := t.printPage(w, child); err != nil {
			return err
		}
	}
	return nil
}

// DrawDot emits the tree as a Graphviz digraph: one table-shaped node
// per page, edges to children, and same-rank chains for the leaf list.
func (t *BTree) DrawDot(w io.Writer) error {
	root, err := t.RootPageID()
	if err != nil {
		return err
	}
	if root == base.InvalidPageID {
		t.log.Warn("drawing an empty tree", "name", t.name)
		_, err := fmt.Fprintln(w, "digraph G {\n}")
		return err
	}

	fmt.Fprintln(w, "digraph G {")
	if err := t.drawPage(w, root); err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, "}")
	return err
}

func (t *BTree) drawPage(w io.Writer, pid base.PageID) error {
	g, err := t.pool.FetchRead(pid)
	if err != nil {
		return err
	}

	node := base.ViewNode(g.Page())
	if node.IsLeaf() {
		leaf := base.AsLeaf(g.Page())
		fmt.Fprintf(w, "LEAF_%d [shape=plain color=green label=<<TABLE BORDER=\"0\" CELLBORDER=\"1\" CELLSPACING=\"0\" CELLPADDING=\"4\">\n", pid)
		fmt.Fprintf(w, "<TR><TD COLSPAN=\"%d\">P=%d</TD></TR>\n", leaf.Size(), pid)
		fmt.Fprintf(w, "<TR><TD COLSPAN=\"%d\">max_size=%d,min_size=%d,size=%d</TD></TR>\n",
			leaf.Size(), leaf.MaxSize(), leaf.MinSize(), leaf.Size())
		fmt.Fprintf(w, "<TR>")
		for i := 0; i < leaf.Size(); i++ {
			fmt.Fprintf(w, "<TD>%s</TD>\n", t.formatKey(leaf.KeyAt(i)))
		}
		fmt.Fprintf(w, "</TR></TABLE>>];\n")
		if next := leaf.Next(); next != base.InvalidPageID {
			fmt.Fprintf(w, "LEAF_%d -> LEAF_%d;\n", pid, next)
			fmt.Fprintf(w, "{rank=same LEAF_%d LEAF_%d};\n", pid, next)
		}
		g.Drop()
		return nil
	}

	in := base.AsInternal(g.Page())
	fmt.Fprintf(w, "INT_%d [shape=plain color=pink label=<<TABLE BORDER=\"0\" CELLBORDER=\"1\" CELLSPACING=\"0\" CELLPADDING=\"4\">\n", pid)
	fmt.Fprintf(w, "<TR><TD COLSPAN=\"%d\">P=%d</TD></TR>\n", in.Size(), pid)
	fmt.Fprintf(w, "<TR><TD COLSPAN=\"%d\">max_size=%d,min_size=%d,size=%d</TD></TR>\n",
		in.Size(), in.MaxSize(), in.MinSize(), in.Size())
	fmt.Fprintf(w, "<TR>")
	children := make([]base.PageID, in.Size())
	for i := 0; i < in.Size(); i++ {
		children[i] = in.ChildAt(i)
		fmt.Fprintf(w, "<TD PORT=\"p%d\">%s  %d</TD>\n", children[i], t.formatKey(in.KeyAt(i)), children[i])
	}
	fmt.Fprintf(w, "</TR></TABLE>>];\n")
	g.Drop()

	for _, child := range children {
		if err := t.drawPage(w, child); err != nil {
			return err
		}
		cg, err := t.pool.FetchRead(child)
		if err != nil {
			return err
		}
		isLeaf := base.ViewNode(cg.Page()).IsLeaf()
		cg.Drop()
		if isLeaf {
			fmt.Fprintf(w, "INT_%d:p%d -> LEAF_%d;\n", pid, child, child)
		} else {
			fmt.Fprintf(w, "INT_%d:p%d -> INT_%d;\n", pid, child, child)
		}
	}
	return nil
}

// formatKey renders keys for debug output: decoded as an integer when
// the tree uses the order-preserving integer encoding widths, hex
// otherwise.
func (t *BTree) formatKey(key []byte) string {
	if t.keySize == 4 || t.keySize == 8 {
		return fmt.Sprintf("%d", DecodeInt64Key(key))
	}
	return fmt.Sprintf("%x", key)
}
