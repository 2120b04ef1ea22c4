package projection

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jhoicas/credimarket-api/internal/domain/entity"
	"github.com/jhoicas/credimarket-api/internal/domain/store"
)

// Transforms concretos de cada vista. Decodifican el snapshot y, donde
// aplica, ejecutan el join fan-out sobre documentos secundarios.

// Users transform del documento propio del prestatario.
func Users() Transform[entity.User] {
	return func(_ context.Context, docs []store.Document) ([]entity.User, error) {
		out := make([]entity.User, 0, len(docs))
		for _, d := range docs {
			var u entity.User
			if err := d.DataTo(&u); err != nil {
				return nil, fmt.Errorf("proyección users: %w", err)
			}
			u.ID = d.ID
			u.PasswordHash = "" // el hash jamás sale del store hacia una vista
			out = append(out, u)
		}
		return out, nil
	}
}

// Applications transform de solicitudes. Con joiner no nil, cada solicitud se
// joinea contra el documento del prestatario para refrescar nombre y avatar
// (vista del aliado); con joiner nil se proyecta el snapshot desnormalizado
// tal cual (vista del propio prestatario).
func Applications(joiner *Joiner) Transform[entity.Application] {
	return func(ctx context.Context, docs []store.Document) ([]entity.Application, error) {
		apps := make([]entity.Application, 0, len(docs))
		for _, d := range docs {
			var a entity.Application
			if err := d.DataTo(&a); err != nil {
				return nil, fmt.Errorf("proyección applications: %w", err)
			}
			a.ID = d.ID
			apps = append(apps, a)
		}
		if joiner == nil {
			return apps, nil
		}

		ids := make([]string, len(apps))
		for i, a := range apps {
			ids[i] = a.UserID
		}
		users := joiner.Fetch(ctx, ids)
		for i := range apps {
			doc, ok := users[apps[i].UserID]
			if !ok {
				continue // join best-effort: se conserva el snapshot
			}
			var u entity.User
			if err := doc.DataTo(&u); err != nil {
				continue
			}
			apps[i].Borrower = entity.BorrowerSnapshot{
				DisplayName: u.DisplayName,
				AvatarURL:   u.AvatarURL,
			}
		}
		return apps, nil
	}
}

// LoanProducts transform de la sub-colección de productos de un aliado.
func LoanProducts() Transform[entity.LoanProduct] {
	return func(_ context.Context, docs []store.Document) ([]entity.LoanProduct, error) {
		out := make([]entity.LoanProduct, 0, len(docs))
		for _, d := range docs {
			var p entity.LoanProduct
			if err := d.DataTo(&p); err != nil {
				return nil, fmt.Errorf("proyección products: %w", err)
			}
			p.ID = d.ID
			out = append(out, p)
		}
		return out, nil
	}
}

// LoanActivity transform del libro de créditos del aliado.
func LoanActivity() Transform[entity.LoanActivityItem] {
	return func(_ context.Context, docs []store.Document) ([]entity.LoanActivityItem, error) {
		out := make([]entity.LoanActivityItem, 0, len(docs))
		for _, d := range docs {
			var it entity.LoanActivityItem
			if err := d.DataTo(&it); err != nil {
				return nil, fmt.Errorf("proyección loanActivity: %w", err)
			}
			it.ID = d.ID
			out = append(out, it)
		}
		return out, nil
	}
}

// Notifications transform del buzón: siempre re-ordenado por timestamp
// descendente en cada snapshot.
func Notifications() Transform[entity.Notification] {
	return func(_ context.Context, docs []store.Document) ([]entity.Notification, error) {
		out := make([]entity.Notification, 0, len(docs))
		for _, d := range docs {
			var n entity.Notification
			if err := d.DataTo(&n); err != nil {
				return nil, fmt.Errorf("proyección notifications: %w", err)
			}
			n.ID = d.ID
			out = append(out, n)
		}
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Timestamp.After(out[j].Timestamp)
		})
		return out, nil
	}
}

// Directory transform del directorio global de aliados: cada partner se
// joinea con su sub-colección de productos (lectura fan-out acotada por
// snapshot; el resultado no queda vivo respecto a products, la obsolescencia
// ahí se tolera por ser datos de display).
func Directory(st store.Store) Transform[entity.Partner] {
	return func(ctx context.Context, docs []store.Document) ([]entity.Partner, error) {
		partners := make([]entity.Partner, 0, len(docs))
		for _, d := range docs {
			var p entity.Partner
			if err := d.DataTo(&p); err != nil {
				return nil, fmt.Errorf("proyección directory: %w", err)
			}
			p.ID = d.ID
			partners = append(partners, p)
		}

		sem := make(chan struct{}, joinConcurrency)
		var wg sync.WaitGroup
		for i := range partners {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				docs, err := st.Collection(store.ProductsOf(partners[i].ID)).Documents(ctx, store.All())
				if err != nil {
					return // best-effort: el partner queda sin productos este snapshot
				}
				products := make([]entity.LoanProduct, 0, len(docs))
				for _, d := range docs {
					var p entity.LoanProduct
					if err := d.DataTo(&p); err != nil {
						continue
					}
					p.ID = d.ID
					products = append(products, p)
				}
				partners[i].Products = products
			}(i)
		}
		wg.Wait()
		return partners, nil
	}
}
