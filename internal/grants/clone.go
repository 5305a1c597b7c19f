package grants

import "slices"

func cloneOrg(o Organization) Organization {
	o.Members = slices.Clone(o.Members)
	o.Authorizations = slices.Clone(o.Authorizations)
	for i := range o.Authorizations {
		o.Authorizations[i].Scope = slices.Clone(o.Authorizations[i].Scope)
	}
	return o
}

func cloneProject(p Project) Project {
	p.Procurement = slices.Clone(p.Procurement)
	p.Members = slices.Clone(p.Members)
	p.RequiredDocuments = cloneRequired(p.RequiredDocuments)
	p.GuideAssets = slices.Clone(p.GuideAssets)
	p.Drafts = slices.Clone(p.Drafts)
	p.History = slices.Clone(p.History)
	return p
}

func cloneApplication(a Application) Application {
	a.Procurement = slices.Clone(a.Procurement)
	a.GuideAssets = slices.Clone(a.GuideAssets)
	a.RequiredDocuments = cloneRequired(a.RequiredDocuments)
	a.Drafts = slices.Clone(a.Drafts)
	a.History = slices.Clone(a.History)
	return a
}

func cloneRequired(in Checklist) Checklist {
	out := slices.Clone(in)
	for i := range out {
		if out[i].UploadedAt != nil {
			t := *out[i].UploadedAt
			out[i].UploadedAt = &t
		}
	}
	return out
}
