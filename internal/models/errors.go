package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound              = errors.New("ressource introuvable")
	ErrConflict              = errors.New("ressource déjà existante")
	ErrEmptyCart             = errors.New("panier vide")
	ErrOutOfStock            = errors.New("stock insuffisant")
	ErrSignatureVerification = errors.New("signature du webhook invalide")
	ErrGateway               = errors.New("erreur du prestataire de paiement")
	ErrDirectPaymentDisabled = errors.New("paiement direct désactivé hors mode test")
	ErrInvalidTransition     = errors.New("transition de statut invalide")
	ErrInvalidCredentials    = errors.New("identifiants invalides")
	ErrForbidden             = errors.New("accès refusé")
)

// ValidationError regroupe les erreurs de saisie par champ.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "données invalides (" + strings.Join(parts, ", ") + ")"
}

// OutOfStockError précise le produit en rupture lors de la validation d'une commande.
type OutOfStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("stock insuffisant pour %s: %d disponible(s), %d demandé(s)", e.ProductID, e.Available, e.Requested)
}

func (e *OutOfStockError) Unwrap() error { return ErrOutOfStock }

// GatewayError enveloppe une erreur du SDK de paiement.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("paiement %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Is(target error) bool { return target == ErrGateway }

func (e *GatewayError) Unwrap() error { return e.Err }
