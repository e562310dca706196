package tool

import "net/http"

type BuiltinOptions struct {
	// HTTPClient is used by network tools; nil means a default client.
	HTTPClient *http.Client
	// ArxivEndpoint overrides the arXiv API URL.
	ArxivEndpoint string
}

// RegisterBuiltins installs calculate and search_arxiv.
func RegisterBuiltins(reg *Registry, opt BuiltinOptions) {
	reg.Register("calculate", Func(Calculate))

	arxiv := NewArxivSearch(opt.HTTPClient)
	if opt.ArxivEndpoint != "" {
		arxiv.Endpoint = opt.ArxivEndpoint
	}
	reg.Register("search_arxiv", arxiv)
}
