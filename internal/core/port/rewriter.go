package port

type ReferenceRewriter interface {
	// Rewrite replaces every occurrence of the basename oldName with newName
	// across all reference documents and returns the number of documents
	// that changed. Matching is by raw substring on the basename.
	Rewrite(oldName, newName string) (int, error)
}
