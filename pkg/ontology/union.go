package ontology

// Union is a read-only view over a shared base graph and a per-call overlay.
// Writes go to the overlay only.
type Union struct {
	base    Reader
	overlay *Graph
}

func NewUnion(base Reader, overlay *Graph) *Union {
	if overlay == nil {
		overlay = NewGraph()
	}

	return &Union{base: base, overlay: overlay}
}

// Assert adds an inferred fact to the overlay.
func (u *Union) Assert(subject, predicate, object string) {
	u.overlay.Add(subject, predicate, object)
}

func (u *Union) Objects(subject, predicate string) []string {
	objs := u.base.Objects(subject, predicate)
	for _, o := range u.overlay.Objects(subject, predicate) {
		if !contains(objs, o) {
			objs = append(objs, o)
		}
	}

	return objs
}

func (u *Union) Has(subject, predicate, object string) bool {
	return u.overlay.Has(subject, predicate, object) || u.base.Has(subject, predicate, object)
}

func (u *Union) Facts() map[string]map[string][]string {
	facts := u.base.Facts()

	for s, preds := range u.overlay.index {
		target, ok := facts[s]
		if !ok {
			target = make(map[string][]string, len(preds))
			facts[s] = target
		}

		for p, objs := range preds {
			for _, o := range objs {
				if !contains(target[p], o) {
					target[p] = append(target[p], o)
				}
			}
		}
	}

	return facts
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}

	return false
}
