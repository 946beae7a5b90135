package models

// CartEntry est une ligne du panier de session.
// Price est l'instantané du prix unitaire au moment de l'ajout, en texte décimal.
type CartEntry struct {
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

// Cart associe un identifiant produit à sa ligne.
type Cart map[string]CartEntry

// Clone retourne une copie indépendante du panier.
func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	for id, entry := range c {
		out[id] = entry
	}
	return out
}
