// Package fuzztests houses Go fuzz harnesses for the rewrite engine
// (scanner -> injector -> splice). The goal is to guard against panics,
// out-of-range edits and non-idempotent rewrites on arbitrary inputs.
//
// Назначение: прогонять произвольные байты через scan.Scanner и
// rewrite.Rule и проверять инварианты из internal/testkit.
//
// Не делает: генерацию корпусов, запись файлов, выполнение CLI.
//
// Зависимости: internal/scan, internal/rewrite, internal/testkit.
package fuzztests
