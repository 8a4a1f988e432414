package app

// ==========================================
// ОБХОД ДЕРЕВА МЕНЮ
// ==========================================

// AllButtonsRecursive возвращает всё дерево кнопок сверху вниз:
// сначала кнопка, затем её потомки. Дерево ацикличное по построению
// (родитель выбирается только из уже существующих кнопок), поэтому
// рекурсия всегда завершается.
func (mm *MenuManager) AllButtonsRecursive(parentID *uint) ([]MenuButton, error) {
	buttons, err := mm.ButtonsByParent(parentID)
	if err != nil {
		return nil, err
	}
	var all []MenuButton
	for _, btn := range buttons {
		all = append(all, btn)
		id := btn.ID
		children, err := mm.AllButtonsRecursive(&id)
		if err != nil {
			return nil, err
		}
		all = append(all, children...)
	}
	return all, nil
}

// ParentPaths строит человекочитаемые пути до кнопок вида "Родитель > Родитель".
// Для корневых кнопок путь пустой.
func ParentPaths(all []MenuButton) map[uint]string {
	byID := make(map[uint]MenuButton, len(all))
	for _, b := range all {
		byID[b.ID] = b
	}

	paths := make(map[uint]string, len(all))
	for _, b := range all {
		var parts []string
		parentID := b.ParentID
		for parentID != nil {
			parent, ok := byID[*parentID]
			if !ok {
				break
			}
			parts = append([]string{parent.Text}, parts...)
			parentID = parent.ParentID
		}
		path := ""
		for i, p := range parts {
			if i > 0 {
				path += " > "
			}
			path += p
		}
		paths[b.ID] = path
	}
	return paths
}
