package rpc

// Group registers handlers under a common method prefix, joined with ".".
type Group struct {
	responder *Responder
	prefix    string
}

func (r *Responder) Group(prefix string) *Group {
	return &Group{responder: r, prefix: prefix}
}

func (g *Group) sub(name string) string {
	if g.prefix == "" || name == "" {
		if name == "" {
			return g.prefix
		}
		return name
	}
	return g.prefix + "." + name
}

// Group nests a further prefix under g.
func (g *Group) Group(suffix string) *Group {
	return &Group{responder: g.responder, prefix: g.sub(suffix)}
}

func (g *Group) OnRequest(name string, h RequestHandlerFunc) {
	g.responder.OnRequest(g.sub(name), h)
}
