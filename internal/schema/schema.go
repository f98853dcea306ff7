// Package schema lists the collections and globals the site stores.
//
// Exporter, importer and the HTTP layer all resolve names through this
// package, so adding a collection is a change in one place.
package schema

// Collection is the slug of a document collection
type Collection string

// Global is the slug of a singleton configuration document
type Global string

const (
	Categories      Collection = "categories"
	Media           Collection = "media"
	Pages           Collection = "pages"
	Posts           Collection = "posts"
	Forms           Collection = "forms"
	FormSubmissions Collection = "form-submissions"
	Search          Collection = "search"
	EmailTemplates  Collection = "email-templates"

	// Users is only exported and imported when explicitly requested.
	Users Collection = "users"
)

const (
	Header        Global = "header"
	Footer        Global = "footer"
	WhatsApp      Global = "whatsapp"
	Phone         Global = "phone"
	CookieConsent Global = "cookie-consent"
)

var collections = []Collection{
	Categories,
	Media,
	Pages,
	Posts,
	Forms,
	FormSubmissions,
	Search,
	EmailTemplates,
}

var globals = []Global{
	Header,
	Footer,
	WhatsApp,
	Phone,
	CookieConsent,
}

// Collections returns the seedable collections in a fixed order.
// Users is not part of the list.
func Collections() []Collection {
	out := make([]Collection, len(collections))
	copy(out, collections)
	return out
}

// CollectionsWithUsers returns Collections, plus Users when includeUsers is set
func CollectionsWithUsers(includeUsers bool) []Collection {
	out := Collections()
	if includeUsers {
		out = append(out, Users)
	}
	return out
}

// Globals returns all globals in a fixed order
func Globals() []Global {
	out := make([]Global, len(globals))
	copy(out, globals)
	return out
}

// ParseCollection resolves a collection slug. Users is recognised here;
// callers decide whether it is allowed.
func ParseCollection(name string) (Collection, bool) {
	if name == string(Users) {
		return Users, true
	}
	for _, c := range collections {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// ParseGlobal resolves a global slug
func ParseGlobal(name string) (Global, bool) {
	for _, g := range globals {
		if string(g) == name {
			return g, true
		}
	}
	return "", false
}

// Versioned reports whether the collection keeps version history
func (c Collection) Versioned() bool {
	return c == Pages || c == Posts
}

// Public reports whether the collection may be read without admin credentials
func (c Collection) Public() bool {
	switch c {
	case Categories, Media, Pages, Posts:
		return true
	}
	return false
}

func (c Collection) String() string { return string(c) }

func (g Global) String() string { return string(g) }
