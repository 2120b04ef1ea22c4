// Package session resuelve el rol de un principal autenticado y construye la
// sesión que posee las proyecciones de ese rol. Los dos roles son
// mutuamente excluyentes: un id es prestatario o aliado, nunca ambos.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jhoicas/credimarket-api/internal/domain"
	"github.com/jhoicas/credimarket-api/internal/domain/entity"
	"github.com/jhoicas/credimarket-api/internal/domain/store"
)

// Role rol resuelto de una sesión.
type Role string

const (
	RoleBorrower Role = "borrower"
	RolePartner  Role = "partner"
)

// Resolution resultado de resolver un principal: exactamente uno de
// {Borrower} o {Partner + registro del aliado}.
type Resolution struct {
	Role    Role
	Partner *entity.Partner // no nil solo cuando Role == RolePartner
}

// Resolver decide el rol sondeando la colección de aliados.
type Resolver struct {
	store store.Store
}

// NewResolver construye el resolver.
func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st}
}

// Resolve lee partners/<principalID>: existencia implica aliado, ausencia
// implica prestatario. Cualquier otro fallo de lectura es ErrResolution —
// tratar un fallo como prestatario filtraría datos del rol equivocado, así
// que el caller no debe arrancar proyecciones hasta resolver.
func (r *Resolver) Resolve(ctx context.Context, principalID string) (Resolution, error) {
	if principalID == "" {
		return Resolution{}, fmt.Errorf("%w: principal vacío", domain.ErrValidation)
	}

	doc, err := r.store.Collection(store.Partners).Get(ctx, principalID)
	if errors.Is(err, domain.ErrNotFound) {
		return Resolution{Role: RoleBorrower}, nil
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: leer partners/%s: %v", domain.ErrResolution, principalID, err)
	}

	var p entity.Partner
	if err := doc.DataTo(&p); err != nil {
		return Resolution{}, fmt.Errorf("%w: decodificar partner %s: %v", domain.ErrResolution, principalID, err)
	}
	p.ID = doc.ID

	// El registro del aliado se entrega con sus productos cargados.
	prodDocs, err := r.store.Collection(store.ProductsOf(principalID)).Documents(ctx, store.All())
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: leer productos de %s: %v", domain.ErrResolution, principalID, err)
	}
	for _, d := range prodDocs {
		var prod entity.LoanProduct
		if err := d.DataTo(&prod); err != nil {
			continue
		}
		prod.ID = d.ID
		p.Products = append(p.Products, prod)
	}

	return Resolution{Role: RolePartner, Partner: &p}, nil
}
