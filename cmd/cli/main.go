// Commande d'administration : création d'un compte admin et jeu de données de démonstration.
//
//	cli add-admin -username root -email root@example.com -password '...'
//	cli seed
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"boutique_back_end/internal/accounts"
	"boutique_back_end/internal/cache"
	"boutique_back_end/internal/catalog"
	"boutique_back_end/internal/config"
	"boutique_back_end/internal/models"
	"boutique_back_end/internal/store"
	"boutique_back_end/internal/store/backend"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cli <add-admin|seed> [options]")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cfg := config.Load()
	cfg.ApplyDevelopmentDefaults()

	ctx := context.Background()
	st, err := backend.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Connexion à la base impossible : %v", err)
	}
	defer st.Close()

	switch os.Args[1] {
	case "add-admin":
		err = addAdmin(ctx, cfg, st, os.Args[2:])
	case "seed":
		err = seed(ctx, st)
	default:
		usage()
	}
	if err != nil {
		log.Printf("❌ %v", err)
		st.Close()
		os.Exit(1)
	}
}

func addAdmin(ctx context.Context, cfg *config.Config, st store.Store, args []string) error {
	fs := flag.NewFlagSet("add-admin", flag.ExitOnError)
	username := fs.String("username", "", "nom d'utilisateur")
	email := fs.String("email", "", "adresse e-mail")
	password := fs.String("password", "", "mot de passe (8 caractères minimum)")
	_ = fs.Parse(args)

	if *username == "" || *email == "" {
		fs.Usage()
		return errors.New("username et email sont obligatoires")
	}

	svc := accounts.NewService(st, accounts.NewTokens(cfg.JWTSecret, cfg.JWTTTL), cache.NewMemoryBlacklist())
	u, err := svc.CreateAdmin(ctx, *username, *email, *password)
	if err != nil {
		return fmt.Errorf("création de l'administrateur: %w", err)
	}
	log.Printf("✅ Administrateur créé : %s (%s)", u.Username, u.ID)
	return nil
}

type seedProduct struct {
	category    string
	name        string
	description string
	price       string
	stock       int
}

var seedCategories = []string{"Thés", "Accessoires"}

var seedProducts = []seedProduct{
	{"thes", "Sencha du Japon", "Thé vert japonais aux notes herbacées.", "12.50", 40},
	{"thes", "Earl Grey", "Thé noir parfumé à la bergamote.", "9.90", 60},
	{"thes", "Darjeeling", "Première récolte, thé noir de l'Himalaya.", "15.00", 25},
	{"accessoires", "Théière en fonte", "Théière japonaise 0,8 L.", "45.00", 10},
	{"accessoires", "Tasse en grès", "Tasse artisanale 25 cl.", "8.00", 30},
}

// seed est rejouable : les fiches déjà présentes (même slug) sont ignorées.
func seed(ctx context.Context, st store.Store) error {
	svc := catalog.NewService(st, nil, nil)

	for _, name := range seedCategories {
		c, err := svc.CreateCategory(ctx, catalog.CategoryInput{Name: name})
		if skipExisting(err, name) {
			continue
		}
		if err != nil {
			return fmt.Errorf("catégorie %s: %w", name, err)
		}
		log.Printf("📁 Catégorie créée : %s", c.Slug)
	}

	for _, sp := range seedProducts {
		p, err := svc.CreateProduct(ctx, catalog.ProductInput{
			CategorySlug: sp.category,
			Name:         sp.name,
			Description:  sp.description,
			Price:        sp.price,
			Stock:        sp.stock,
		})
		if skipExisting(err, sp.name) {
			continue
		}
		if err != nil {
			return fmt.Errorf("produit %s: %w", sp.name, err)
		}
		log.Printf("📦 Produit créé : %s (%s €, stock %d)", p.Name, p.Price.StringFixed(2), p.Stock)
	}

	log.Println("✅ Jeu de données chargé")
	return nil
}

func skipExisting(err error, name string) bool {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		if _, ok := verr.Fields["slug"]; ok {
			log.Printf("ℹ️ %s existe déjà, ignoré", name)
			return true
		}
	}
	return false
}
