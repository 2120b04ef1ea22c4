// Package store define el puerto hacia el document-store remoto (colecciones
// clave-valor con consultas por campo y suscripciones en vivo). El store
// autoritativo es un colaborador externo; aquí solo vive el contrato que los
// adaptadores (memstore, postgres) implementan.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Colecciones lógicas del sistema. Products es sub-colección de un partner:
// usar ProductsOf(partnerID).
const (
	Users         = "users"
	Partners      = "partners"
	Applications  = "applications"
	LoanActivity  = "loanActivity"
	Notifications = "notifications"
)

// ProductsOf ruta de la sub-colección de productos de un aliado.
func ProductsOf(partnerID string) string {
	return Partners + "/" + partnerID + "/products"
}

// Document un documento leído del store: id más campos.
type Document struct {
	ID   string
	Data map[string]any
}

// DataTo decodifica los campos del documento en v (round-trip JSON, igual
// que hace el SDK del store). Tolera campos extra y faltantes.
func (d Document) DataTo(v any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("store: codificar documento %s: %w", d.ID, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("store: decodificar documento %s: %w", d.ID, err)
	}
	return nil
}

// DataFrom codifica una entidad a los campos de un documento.
func DataFrom(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("store: codificar entidad: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("store: entidad no es un objeto: %w", err)
	}
	return data, nil
}

// serverTimestamp es el tipo del centinela ServerTimestamp.
type serverTimestamp struct{}

// ServerTimestamp centinela que el adaptador reemplaza al escribir por la
// marca de tiempo del servidor (valor monótono opaco, convertible a time.Time
// en lectura).
var ServerTimestamp = serverTimestamp{}

// ResolveTimestamps reemplaza los centinelas ServerTimestamp de data por now.
// Lo usan los adaptadores justo antes de persistir.
func ResolveTimestamps(data map[string]any, now time.Time) {
	for k, v := range data {
		switch tv := v.(type) {
		case serverTimestamp:
			data[k] = now.UTC().Format(time.RFC3339Nano)
		case map[string]any:
			ResolveTimestamps(tv, now)
		default:
		}
	}
}

// Filter igualdad sobre un campo. Field admite rutas con punto
// ("loan.partnerId") para campos anidados.
type Filter struct {
	Field string
	Value any
}

// Query conjunto de filtros de igualdad sobre una colección. La consulta
// vacía selecciona la colección completa.
type Query struct {
	Filters []Filter
}

// Where añade un filtro de igualdad y devuelve la query (encadenable).
func (q Query) Where(field string, value any) Query {
	q.Filters = append(q.Filters, Filter{Field: field, Value: value})
	return q
}

// All consulta sin filtros.
func All() Query { return Query{} }

// Where consulta con un único filtro de igualdad.
func Where(field string, value any) Query {
	return Query{Filters: []Filter{{Field: field, Value: value}}}
}

// FieldID filtra por el id del documento en lugar de un campo de datos
// (equivalente a suscribirse a un documento puntual).
const FieldID = "__id__"

// Matches evalúa los filtros de q contra un documento. Compartido por los
// adaptadores para no duplicar la semántica de igualdad.
func (q Query) Matches(doc Document) bool {
	for _, f := range q.Filters {
		if f.Field == FieldID {
			if fmt.Sprint(f.Value) != doc.ID {
				return false
			}
			continue
		}
		got, ok := FieldValue(doc.Data, f.Field)
		if !ok || !looseEqual(got, f.Value) {
			return false
		}
	}
	return true
}

// FieldValue resuelve una ruta con puntos dentro de los campos del documento.
func FieldValue(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = data
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// looseEqual compara valores que pudieron pasar por un round-trip JSON
// (los números llegan como float64, los booleanos y strings intactos).
func looseEqual(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Update actualización parcial de un documento, usada por BatchUpdate.
type Update struct {
	ID     string
	Fields map[string]any
}

// Subscription flujo en vivo de conjuntos de documentos. Updates entrega los
// snapshots en el orden en que el store los emite y se cierra al cancelar o
// fallar; Err distingue la causa tras el cierre (nil si fue cancelación).
type Subscription interface {
	Updates() <-chan []Document
	Err() error
	Cancel()
}

// Collection operaciones sobre una colección del store remoto.
type Collection interface {
	// Get lee un documento por id; domain.ErrNotFound si no existe.
	Get(ctx context.Context, id string) (Document, error)
	// Add crea un documento con id asignado por el store y devuelve el id.
	Add(ctx context.Context, data map[string]any) (string, error)
	// Set escribe el documento completo en el id dado (crea o reemplaza).
	Set(ctx context.Context, id string, data map[string]any) error
	// Update aplica campos parciales; domain.ErrNotFound si no existe.
	Update(ctx context.Context, id string, fields map[string]any) error
	// Delete elimina el documento. Borrar un id ausente no es error.
	Delete(ctx context.Context, id string) error
	// Documents consulta puntual (un solo snapshot).
	Documents(ctx context.Context, q Query) ([]Document, error)
	// Subscribe abre un flujo en vivo para la query. El primer snapshot llega
	// de inmediato; cada cambio posterior re-emite el conjunto completo.
	Subscribe(ctx context.Context, q Query) (Subscription, error)
}

// Store raíz del document-store.
type Store interface {
	Collection(path string) Collection
	// BatchUpdate aplica todas las actualizaciones parciales de forma
	// atómica: o se aplican todas o ninguna.
	BatchUpdate(ctx context.Context, path string, updates []Update) error
}
