// Package harness runs ledger scenarios written in YAML as conformance
// tests.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	setup:
//	  - action: product.upsert
//	    args: { cod: X, nome: Cafe, preco_c: 200, initial_qty: 10 }
//	flow:
//	  - invoke: sale.record
//	    args: { itens: [ { cod: X, qtd: 3 } ] }
//	    save_as: sale
//	    expect:
//	      case: Success
//	      result: { total_c: 600 }
//	  - invoke: sale.cancel
//	    args: { sale_id: $sale, restock: true }
//	assertions:
//	  - type: final_state
//	    table: estoque
//	    where: { cod: X }
//	    expect: { qtd: 10 }
//	  - type: final_count
//	    table: saleVoids
//	    count: 1
//
// Setup steps must succeed. A flow step without expect must succeed too.
// The case of a failed step is the ledger.ErrorCode of its error, so a
// scenario can expect SALE_ALREADY_VOIDED or REGISTER_NOT_OPEN.
//
// save_as binds the id of the step's result (or its cod, for products) to a
// name. A string argument "$name" is replaced by the bound value.
//
// # Assertion Types
//
//   - trace_contains: an invocation of action with matching args
//   - trace_order: actions invoked in the given order
//   - trace_count: action invoked exactly count times
//   - final_state: exactly one record of table matches where, and it
//     carries the expect fields
//   - final_count: count records of table match where
//
// All matching is by subset. Numbers compare by value.
//
// # Determinism
//
// Every scenario runs against a fresh in-memory store with a fixed clock
// and sequential ids, so two runs of one scenario produce identical traces.
package harness
