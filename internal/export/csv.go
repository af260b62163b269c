// Package export writes dashboard, VAT and audit worksheets as CSV and XLSX files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/appmato/gestion/internal/audit"
	"github.com/appmato/gestion/internal/fiscal"
	"github.com/appmato/gestion/internal/shared"
)

// WriteMatrixCSV serialises the dossier by month matrix of one obligation type.
func WriteMatrixCSV(w io.Writer, m fiscal.Matrix) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{"Code", "Dossier"}
	for _, p := range m.Months {
		header = append(header, p.String())
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range m.Rows {
		record := []string{shared.EscapeFormula(row.DossierCode), shared.EscapeFormula(row.DossierName)}
		for _, cell := range row.Cells {
			record = append(record, cellText(cell.Obligation))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteLateCSV prints the late obligations with their delay.
func WriteLateCSV(w io.Writer, late []fiscal.Annotated) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Dossier", "Type", "Période", "Échéance", "Jours de retard", "Statut"}); err != nil {
		return err
	}
	for _, a := range late {
		if err := writer.Write([]string{
			shared.EscapeFormula(a.DossierName),
			string(a.Type),
			a.Key().Period.String(),
			fiscal.FormatDate(a.DueDate),
			fmt.Sprint(a.DaysLate()),
			a.Status.Label(),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func cellText(a *fiscal.Annotated) string {
	if a == nil {
		return ""
	}
	if a.Urgency == fiscal.UrgencyDone || !a.HasDueDate() {
		return a.Status.Label()
	}
	return fmt.Sprintf("%s (%s)", a.DueDate.Format("02/01/2006"), a.DueLabel)
}

// WriteAuditCSV prints audit entries, newest first as given.
func WriteAuditCSV(w io.Writer, entries []audit.Entry) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Date", "Acteur", "Action", "Entité", "Identifiant", "Détails"}); err != nil {
		return err
	}
	for _, e := range entries {
		actor := ""
		if e.ActorID.Valid {
			actor = e.ActorID.UUID.String()
		}
		meta := ""
		if len(e.Meta) > 0 {
			raw, err := json.Marshal(e.Meta)
			if err != nil {
				return err
			}
			meta = string(raw)
		}
		if err := writer.Write([]string{
			e.At.UTC().Format(time.RFC3339),
			actor,
			e.Action,
			e.Entity,
			e.EntityID,
			shared.EscapeFormula(meta),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
